package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/agentloop/agentloop/message"
)

// RateLimited wraps a Provider with a per-model minimum-interval throttle,
// per spec.md §5: "the time between consecutive model calls is at least
// 60/requests_per_minute seconds when enabled; first call never sleeps."
// The per-model limiter map is guarded by a mutex, matching §5's "the rate
// limiter is a per-model object; its last-call timestamp is guarded by
// exclusion when multi-threaded."
type RateLimited struct {
	inner Provider
	rpm   float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimited wraps inner, throttling each distinct model id to rpm
// requests per minute. A burst of 1 reproduces the teacher's
// minimum-interval semantics: the limiter starts full (so the first call
// never waits) and each subsequent call waits only long enough to keep the
// inter-call gap at 60/rpm seconds. rpm <= 0 disables throttling.
func NewRateLimited(inner Provider, rpm float64) *RateLimited {
	return &RateLimited{inner: inner, rpm: rpm, limiters: make(map[string]*rate.Limiter)}
}

// SetRPM updates the throttle rate live. Existing per-model limiters are
// dropped so the next call seeds a fresh one at the new rate, the same way
// NewRateLimited seeds one lazily on first use.
func (r *RateLimited) SetRPM(rpm float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rpm = rpm
	r.limiters = make(map[string]*rate.Limiter)
}

func (r *RateLimited) limiterFor(model string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[model]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r.rpm/60.0), 1)
		r.limiters[model] = lim
	}
	return lim
}

func (r *RateLimited) wait(ctx context.Context, model string) error {
	if r.rpm <= 0 {
		return nil
	}
	return r.limiterFor(model).Wait(ctx)
}

// Generate throttles, then delegates.
func (r *RateLimited) Generate(ctx context.Context, req Request) (message.Message, error) {
	if err := r.wait(ctx, req.Model); err != nil {
		return message.Message{}, err
	}
	return r.inner.Generate(ctx, req)
}

// GenerateStream throttles opening the stream, then delegates.
func (r *RateLimited) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if err := r.wait(ctx, req.Model); err != nil {
		return nil, err
	}
	return r.inner.GenerateStream(ctx, req)
}

func (r *RateLimited) HealthCheck(ctx context.Context) (HealthStatus, error) { return r.inner.HealthCheck(ctx) }
func (r *RateLimited) Name() string                                         { return r.inner.Name() }
func (r *RateLimited) SupportsToolCalling() bool                            { return r.inner.SupportsToolCalling() }

var _ Provider = (*RateLimited)(nil)
