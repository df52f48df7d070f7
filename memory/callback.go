package memory

import "sync"

// Callback observes a step once it has been appended to Memory. ctx carries
// run-scoped extras (e.g. the agent instance) that a callback may ignore by
// declaring itself as a StepOnlyCallback instead.
type Callback func(step Step, ctx any)

// StepOnlyCallback is a Callback that only wants the step, matching
// spec.md §4.4's "a callback whose signature accepts exactly one argument
// receives only the step."
type StepOnlyCallback func(step Step)

// CallbackRegistry maps a step-variant tag (and its ancestor tags) to an
// ordered list of callbacks, dispatched in registration order on Append.
type CallbackRegistry struct {
	mu        sync.Mutex
	callbacks map[StepKind][]Callback
}

// NewCallbackRegistry returns an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{callbacks: make(map[StepKind][]Callback)}
}

// On registers cb against kind; kind may be a specific StepKind or the
// catch-all "step" tag that every variant's ancestor chain includes.
func (r *CallbackRegistry) On(kind StepKind, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[kind] = append(r.callbacks[kind], cb)
}

// OnStepOnly registers a single-argument callback against kind.
func (r *CallbackRegistry) OnStepOnly(kind StepKind, cb StepOnlyCallback) {
	r.On(kind, func(step Step, _ any) { cb(step) })
}

// Dispatch walks step's ancestor chain and invokes every registered
// callback in registration order; a panicking callback is recovered so
// sibling callbacks still run (spec.md §4.4: "a failing callback does not
// prevent siblings from running").
func (r *CallbackRegistry) Dispatch(step Step, ctx any) {
	r.mu.Lock()
	var toRun []Callback
	for _, kind := range step.ancestorChain() {
		toRun = append(toRun, r.callbacks[kind]...)
	}
	r.mu.Unlock()

	for _, cb := range toRun {
		runCallback(cb, step, ctx)
	}
}

func runCallback(cb Callback, step Step, ctx any) {
	defer func() { recover() }()
	cb(step, ctx)
}
