package toolkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/typedvalue"
)

// InvocationRecorder is the subset of observability.Collector's surface the
// registry needs. Declaring it here instead of importing observability
// keeps toolkit free of a dependency on the metrics package;
// *observability.Collector satisfies this interface structurally.
type InvocationRecorder interface {
	RecordToolInvocation(tool, status string, duration time.Duration)
}

// Registry is a name-keyed set of tools available to an agent run, plus the
// sub-agent names that share the same namespace (spec.md §4.2's duplicate
// detection must see tools and callable sub-agents together).
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	limiters  map[string]*rate.Limiter
	subAgents map[string]bool
	metrics   InvocationRecorder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		limiters:  make(map[string]*rate.Limiter),
		subAgents: make(map[string]bool),
	}
}

// SetMetrics attaches a recorder for every subsequent Invoke/InvokePositional
// call. Passing nil (the default) disables recording.
func (r *Registry) SetMetrics(recorder InvocationRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = recorder
}

// Register adds a tool, rejecting invalid declarations and name collisions
// with any previously registered tool or sub-agent name.
func (r *Registry) Register(t Tool) error {
	if err := ValidateSchema(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return agenterr.Newf(agenterr.KindToolCall, "duplicate tool name %q", name)
	}
	if r.subAgents[name] {
		return agenterr.Newf(agenterr.KindToolCall, "tool name %q collides with a registered sub-agent", name)
	}
	r.tools[name] = t
	return nil
}

// RegisterSubAgent reserves name in the shared tool/sub-agent namespace
// without adding a callable Tool — the driver wires sub-agent dispatch
// separately once the name is known not to collide.
func (r *Registry) RegisterSubAgent(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return agenterr.Newf(agenterr.KindToolCall, "sub-agent name %q collides with a registered tool", name)
	}
	if r.subAgents[name] {
		return agenterr.Newf(agenterr.KindToolCall, "duplicate sub-agent name %q", name)
	}
	r.subAgents[name] = true
	return nil
}

// SetRateLimit bounds calls to the named tool to eventsPerSec events/sec
// with the given burst.
// Tools with no configured limit run unthrottled.
func (r *Registry) SetRateLimit(name string, eventsPerSec float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[name] = rate.NewLimiter(rate.Limit(eventsPerSec), burst)
}

// Get returns the named tool, or false if it isn't registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

// All returns every registered tool, ordered by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sortStrings(names)
	out := make([]Tool, len(names))
	for i, name := range names {
		out[i] = r.tools[name]
	}
	return out
}

// Invoke looks up name and calls it through Call, first waiting on any
// configured rate limiter. It returns a ToolCallError for an unknown name.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, sanitizeIO bool, store func(kind typedvalue.Kind, raw []byte, mime string) string) (any, error) {
	return r.InvokePositional(ctx, name, nil, args, sanitizeIO, store)
}

// InvokePositional is Invoke plus a positional-argument list, for callers
// (the code agent's Lua bridge) whose call site cannot tell positional
// arguments from keyword ones before dispatch.
func (r *Registry) InvokePositional(ctx context.Context, name string, positional []any, kwargs map[string]any, sanitizeIO bool, store func(kind typedvalue.Kind, raw []byte, mime string) string) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, agenterr.Newf(agenterr.KindToolCall, "unknown tool %q", name)
	}

	r.mu.RLock()
	lim := r.limiters[name]
	metrics := r.metrics
	r.mu.RUnlock()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("tool %q rate limit: %w", name, err)
		}
	}

	start := time.Now()
	result, err := Call(ctx, t, positional, kwargs, sanitizeIO, store)
	if metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordToolInvocation(name, status, time.Since(start))
	}
	return result, err
}
