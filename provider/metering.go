package provider

import (
	"context"
	"time"

	"github.com/agentloop/agentloop/message"
)

// RequestRecorder is the subset of observability.Collector's surface Metered
// needs. Declaring it here instead of importing observability keeps
// provider free of a dependency on the metrics package; *observability.
// Collector satisfies this interface structurally.
type RequestRecorder interface {
	RecordProviderRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// Metered wraps a Provider, recording one RecordProviderRequest call per
// Generate/GenerateStream attempt, per spec.md's DOMAIN STACK wiring of
// observability.Collector's provider-request metrics (previously declared
// but never called from any real request path).
type Metered struct {
	inner    Provider
	recorder RequestRecorder
}

// NewMetered wraps inner so every Generate/GenerateStream call is recorded
// against recorder. A nil recorder makes Metered a no-op passthrough.
func NewMetered(inner Provider, recorder RequestRecorder) *Metered {
	return &Metered{inner: inner, recorder: recorder}
}

func (m *Metered) record(model, status string, start time.Time, usage *message.TokenUsage) {
	if m.recorder == nil {
		return
	}
	var prompt, completion int
	if usage != nil {
		prompt, completion = usage.PromptTokens, usage.CompletionTokens
	}
	m.recorder.RecordProviderRequest(m.inner.Name(), model, status, time.Since(start), prompt, completion)
}

// Generate delegates, then records the outcome and token usage.
func (m *Metered) Generate(ctx context.Context, req Request) (message.Message, error) {
	start := time.Now()
	msg, err := m.inner.Generate(ctx, req)
	if err != nil {
		m.record(req.Model, "error", start, nil)
		return msg, err
	}
	m.record(req.Model, "ok", start, msg.Usage)
	return msg, nil
}

// GenerateStream records only whether the stream opened; per-chunk usage
// isn't available until the caller agglomerates deltas, so streamed calls
// are recorded with zero token counts.
func (m *Metered) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	start := time.Now()
	ch, err := m.inner.GenerateStream(ctx, req)
	if err != nil {
		m.record(req.Model, "error", start, nil)
		return nil, err
	}
	m.record(req.Model, "ok", start, nil)
	return ch, nil
}

func (m *Metered) HealthCheck(ctx context.Context) (HealthStatus, error) { return m.inner.HealthCheck(ctx) }
func (m *Metered) Name() string                                         { return m.inner.Name() }
func (m *Metered) SupportsToolCalling() bool                            { return m.inner.SupportsToolCalling() }

var _ Provider = (*Metered)(nil)
