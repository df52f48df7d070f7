// Package provider defines the abstract model interface consumed by the
// driver (spec.md §6): generate / generate-stream, plus the health-check
// and identity surface the teacher's Provider interface already carries.
// Vendor-specific clients live in subpackages (anthropic, openai, gemini,
// openaicompat); ratelimit.go, retrying.go and cache/ are the shared
// collaborators every vendor client is wrapped in.
package provider

import (
	"context"
	"time"

	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/toolkit"
)

// Request is one model call: the projected message history, optional stop
// sequences, the available tools (rendered via toolkit.ToJSONSchema by the
// caller), and an optional structured response format name.
type Request struct {
	Model          string
	Messages       []message.Message
	StopSequences  []string
	Tools          []toolkit.Tool
	ResponseFormat string
	MaxTokens      int
	Temperature    float32
}

// HealthStatus reports a provider's current reachability, mirroring the
// teacher's llm.HealthStatus.
type HealthStatus struct {
	Healthy   bool
	Latency   time.Duration
	ErrorRate float64
}

// Provider is the abstract model collaborator. Implementations must be
// safe for concurrent use: one agent may hold a single Provider shared
// across planning and action-step calls, and a managed sub-agent tree may
// share it too.
type Provider interface {
	// Generate performs one blocking model call and returns the complete
	// response message.
	Generate(ctx context.Context, req Request) (message.Message, error)

	// GenerateStream performs one streaming model call. The returned
	// channel is closed when the stream ends; a send of a StreamEvent with
	// a non-nil Err terminates the stream early.
	GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// HealthCheck performs a lightweight reachability probe.
	HealthCheck(ctx context.Context) (HealthStatus, error)

	// Name returns the provider's stable identifier (e.g. "anthropic").
	Name() string

	// SupportsToolCalling reports whether the vendor's wire protocol has a
	// native structured tool-call channel. When false, the tool-calling
	// agent falls back to the textual `{name, arguments}` JSON protocol
	// (spec.md §4.6 step 2).
	SupportsToolCalling() bool
}

// StreamEvent carries one agglomeration-ready delta, or a terminal error.
type StreamEvent struct {
	Delta message.Delta
	Err   error
}
