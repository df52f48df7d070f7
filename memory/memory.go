package memory

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/message"
)

// Memory is the ordered sequence of steps for one agent run. It is owned
// exclusively by the run that holds it (spec.md §3 "Ownership").
type Memory struct {
	mu       sync.RWMutex
	system   *SystemPromptStep
	steps    []Step
	lastStep int // highest ActionStep.StepNumber appended so far
	final    bool
	callbacks *CallbackRegistry
}

// New creates an empty Memory carrying the given system prompt text.
func New(systemPrompt string) *Memory {
	sp := SystemPromptStep{Text: systemPrompt}
	return &Memory{system: &sp, callbacks: NewCallbackRegistry()}
}

// Callbacks returns the registry dispatched to on every Append.
func (m *Memory) Callbacks() *CallbackRegistry { return m.callbacks }

// Append adds step to the sequence, enforcing spec.md §3's invariants:
// ActionStep.StepNumber strictly increases starting at 1, at most one step
// has IsFinalAnswer=true and it is the last ActionStep, and a
// FinalAnswerStep, if appended, must be the terminal element.
func (m *Memory) Append(step Step) error {
	m.mu.Lock()
	if err := m.checkInvariants(step); err != nil {
		m.mu.Unlock()
		return err
	}
	if step.Kind == KindAction {
		m.lastStep = step.Action.StepNumber
		if step.Action.IsFinalAnswer {
			m.final = true
		}
	}
	m.steps = append(m.steps, step)
	m.mu.Unlock()

	m.callbacks.Dispatch(step, nil)
	return nil
}

func (m *Memory) checkInvariants(step Step) error {
	if len(m.steps) > 0 && m.steps[len(m.steps)-1].Kind == KindFinalAnswer {
		return agenterr.Newf(agenterr.KindAgent, "memory: cannot append after a FinalAnswerStep")
	}
	switch step.Kind {
	case KindAction:
		if step.Action.StepNumber != m.lastStep+1 {
			return agenterr.Newf(agenterr.KindAgent, "memory: action step number %d is not the successor of %d", step.Action.StepNumber, m.lastStep)
		}
		if step.Action.IsFinalAnswer && m.final {
			return agenterr.Newf(agenterr.KindAgent, "memory: two final answers in one run")
		}
		if m.final {
			return agenterr.Newf(agenterr.KindAgent, "memory: action step %d appended after the final answer", step.Action.StepNumber)
		}
	}
	return nil
}

// Reset clears all steps (keeping the system prompt) and the final-answer
// latch, per spec.md §4.3's reset() operation.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = nil
	m.lastStep = 0
	m.final = false
}

// Steps returns a snapshot copy of the appended steps, excluding the
// system prompt (which is tracked separately and projected first by
// ToMessages).
func (m *Memory) Steps() []Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Step, len(m.steps))
	copy(out, m.steps)
	return out
}

// Fork returns a copy of Memory whose step list, system prompt, final-answer
// latch and (empty) callback registry are independent of the original, so
// steps appended to one are not seen by the other. The step payloads already
// present are shared by pointer, not deep-copied.
func (m *Memory) Fork() *Memory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sp := *m.system
	clone := &Memory{
		system:    &sp,
		steps:     append([]Step(nil), m.steps...),
		lastStep:  m.lastStep,
		final:     m.final,
		callbacks: NewCallbackRegistry(),
	}
	return clone
}

// ToMessages projects the full step sequence into the Message list sent as
// the model's next prompt, per spec.md §4.3's step->messages projection.
// In summary mode, SystemPromptStep and PlanningStep contribute nothing,
// and ActionStep omits its assistant(model_output) message.
func (m *Memory) ToMessages(summaryMode bool) []message.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []message.Message
	if !summaryMode && m.system != nil {
		out = append(out, message.NewSystem(m.system.Text))
	}
	for _, step := range m.steps {
		out = append(out, projectStep(step, summaryMode)...)
	}
	return out
}

func projectStep(step Step, summaryMode bool) []message.Message {
	switch step.Kind {
	case KindTask:
		return []message.Message{taskMessage(*step.Task)}
	case KindPlanning:
		if summaryMode {
			return nil
		}
		return []message.Message{
			message.NewAssistant(step.Planning.Plan),
			message.NewUser("Now proceed and carry out this plan."),
		}
	case KindAction:
		return projectActionStep(*step.Action, summaryMode)
	case KindFinalAnswer:
		return nil
	default:
		return nil
	}
}

func taskMessage(t TaskStep) message.Message {
	m := message.NewUser("New task:\n" + t.Task)
	if len(t.Images) > 0 {
		parts := []message.Part{{Type: message.PartText, Text: m.Text}}
		for _, img := range t.Images {
			parts = append(parts, message.Part{Type: message.PartImage, Payload: img})
		}
		m.Text = ""
		m.Parts = parts
	}
	return m
}

func projectActionStep(a ActionStep, summaryMode bool) []message.Message {
	var out []message.Message

	if a.ModelOutput != "" && !summaryMode {
		out = append(out, message.NewAssistant(a.ModelOutput))
	}
	if len(a.ToolCalls) > 0 {
		out = append(out, message.Message{Role: message.RoleToolCall, Text: "Calling tools:\n" + reprToolCalls(a.ToolCalls)})
	}
	if len(a.ObservationImages) > 0 {
		parts := make([]message.Part, 0, len(a.ObservationImages))
		for _, img := range a.ObservationImages {
			parts = append(parts, message.Part{Type: message.PartImage, Payload: img})
		}
		out = append(out, message.Message{Role: message.RoleUser, Parts: parts})
	}
	callID := actionCallID(a)
	if a.Observations != "" {
		out = append(out, message.Message{Role: message.RoleToolResponse, Text: "Observation:\n" + a.Observations, ToolCallID: callID})
	}
	if a.Error != nil {
		text := fmt.Sprintf("Error:\n%s\nNow let's retry: take care not to repeat previous errors!", a.Error.Error())
		if callID != "" {
			text = fmt.Sprintf("Call id: %s\n%s", callID, text)
		}
		out = append(out, message.Message{Role: message.RoleToolResponse, Text: text, ToolCallID: callID})
	}
	return out
}

// actionCallID returns the originating tool call's id for a, so the
// projected tool-response message can be matched back to it by vendor
// wire formats that key on id (provider/anthropic, provider/openai). Only
// the single-call case has an unambiguous id to carry.
func actionCallID(a ActionStep) string {
	if len(a.ToolCalls) == 1 {
		return a.ToolCalls[0].ID
	}
	return ""
}

func reprToolCalls(calls []message.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, fmt.Sprintf("%s(%s)", c.Name, c.Arguments))
	}
	return strings.Join(parts, ", ")
}

// FullSteps renders every step (including model_input_messages) as a
// generic dict, for logging/inspection.
func (m *Memory) FullSteps() []map[string]any {
	return m.renderSteps(true)
}

// SuccinctSteps renders every step with model_input_messages dropped, per
// spec.md §4.3.
func (m *Memory) SuccinctSteps() []map[string]any {
	return m.renderSteps(false)
}

func (m *Memory) renderSteps(includeInputMessages bool) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]map[string]any, 0, len(m.steps)+1)
	out = append(out, map[string]any{"kind": string(KindSystemPrompt), "text": m.system.Text})
	for _, step := range m.steps {
		out = append(out, renderStep(step, includeInputMessages))
	}
	return out
}

func renderStep(step Step, includeInputMessages bool) map[string]any {
	d := map[string]any{"kind": string(step.Kind)}
	switch step.Kind {
	case KindTask:
		d["task"] = step.Task.Task
		d["image_count"] = len(step.Task.Images)
	case KindPlanning:
		d["plan"] = step.Planning.Plan
		if includeInputMessages {
			d["model_input_messages"] = step.Planning.InputMessages
		}
	case KindAction:
		a := step.Action
		d["step_number"] = a.StepNumber
		d["is_final_answer"] = a.IsFinalAnswer
		d["model_output"] = a.ModelOutput
		d["observations"] = a.Observations
		if a.Error != nil {
			d["error"] = a.Error.Error()
		}
		if includeInputMessages {
			d["model_input_messages"] = a.InputMessages
		}
	case KindFinalAnswer:
		d["output"] = step.FinalAnswer.Output
	}
	return d
}

// Replay writes a human-readable reconstruction of the run to logger. When
// detailed is false it omits full message/tool-call bodies.
func (m *Memory) Replay(logger *zap.Logger, detailed bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	logger.Info("system prompt", zap.String("text", m.system.Text))
	for _, step := range m.steps {
		replayStep(logger, step, detailed)
	}
}

func replayStep(logger *zap.Logger, step Step, detailed bool) {
	switch step.Kind {
	case KindTask:
		logger.Info("task", zap.String("task", step.Task.Task))
	case KindPlanning:
		fields := []zap.Field{zap.String("plan", step.Planning.Plan)}
		if detailed {
			fields = append(fields, zap.Duration("duration", step.Planning.Timing.Duration()))
		}
		logger.Info("planning step", fields...)
	case KindAction:
		a := step.Action
		fields := []zap.Field{
			zap.Int("step", a.StepNumber),
			zap.Bool("is_final_answer", a.IsFinalAnswer),
		}
		if detailed {
			fields = append(fields,
				zap.String("model_output", a.ModelOutput),
				zap.String("observations", a.Observations),
				zap.Duration("duration", a.Timing.Duration()),
			)
		}
		if a.Error != nil {
			fields = append(fields, zap.Error(a.Error))
		}
		logger.Info("action step", fields...)
	case KindFinalAnswer:
		logger.Info("final answer step", zap.Any("output", step.FinalAnswer.Output))
	}
}
