// Package monitor implements spec.md §4.3's "all mutation of token
// counters goes through the monitor": a per-run accumulator of token usage
// and wall time across action and planning steps. Mirroring the same
// counts out to a Prometheus scrape endpoint is observability.Collector's
// job, not this package's.
package monitor

import (
	"sync"
	"time"

	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/memory"
)

// Totals is the aggregate the driver reports on RunResult: total
// input/output tokens across action+planning steps (unset if any counted
// step is missing usage, per spec.md §4.5) and total wall time.
type Totals struct {
	PromptTokens     int
	CompletionTokens int
	TokensComplete   bool
	WallTime         time.Duration
}

// Monitor accumulates Totals across one run's steps. It is the only
// component permitted to mutate token counters (spec.md §3 "Ownership").
type Monitor struct {
	mu      sync.Mutex
	totals  Totals
	started time.Time
	seen    int
	missing int
}

// New starts a Monitor with its wall-clock origin set to now.
func New() *Monitor {
	return &Monitor{started: time.Now(), totals: Totals{TokensComplete: true}}
}

// RecordAction folds an ActionStep's timing and token usage into the
// running totals.
func (m *Monitor) RecordAction(step memory.ActionStep) {
	m.record(step.Timing, step.Tokens)
}

// RecordPlanning folds a PlanningStep's timing and token usage into the
// running totals.
func (m *Monitor) RecordPlanning(step memory.PlanningStep) {
	m.record(step.Timing, step.Tokens)
}

func (m *Monitor) record(timing memory.Timing, usage *message.TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen++
	if usage == nil {
		m.missing++
		m.totals.TokensComplete = false
	} else {
		m.totals.PromptTokens += usage.PromptTokens
		m.totals.CompletionTokens += usage.CompletionTokens
	}
	m.totals.WallTime += timing.Duration()
}

// Snapshot returns the current Totals. WallTime is the sum of the recorded
// steps' durations only; Elapsed reports the time since New() was called.
func (m *Monitor) Snapshot() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals
}

// Elapsed returns wall time since the monitor was created, independent of
// any per-step timing recorded so far.
func (m *Monitor) Elapsed() time.Duration {
	return time.Since(m.started)
}
