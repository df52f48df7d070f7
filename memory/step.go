// Package memory implements the episodic memory of spec.md §4.3: an
// ordered sequence of typed steps that projects deterministically into the
// Message list sent back to the model on the next turn.
package memory

import (
	"time"

	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/message"
)

// Timing brackets the wall-clock duration of one step.
type Timing struct {
	Start time.Time
	End   time.Time
}

// Duration returns End.Sub(Start), or zero if the step hasn't ended yet.
func (t Timing) Duration() time.Duration {
	if t.End.IsZero() {
		return 0
	}
	return t.End.Sub(t.Start)
}

// StepKind tags the variant of a Step for the callback registry's
// ancestor-chain dispatch (spec.md §4.4).
type StepKind string

const (
	KindSystemPrompt StepKind = "system_prompt_step"
	KindTask         StepKind = "task_step"
	KindPlanning     StepKind = "planning_step"
	KindAction       StepKind = "action_step"
	KindFinalAnswer  StepKind = "final_answer_step"
)

// Step is the tagged-variant union of spec.md §3's memory step. Exactly one
// of the embedded payload pointers is non-nil, matching Kind.
type Step struct {
	Kind StepKind

	SystemPrompt *SystemPromptStep
	Task         *TaskStep
	Planning     *PlanningStep
	Action       *ActionStep
	FinalAnswer  *FinalAnswerStep
}

// SystemPromptStep carries the run's fixed system prompt. Exactly one
// instance exists, at position 0.
type SystemPromptStep struct {
	Text string
}

// TaskStep records the user-issued task that opened the run.
type TaskStep struct {
	Task   string
	Images [][]byte
}

// PlanningStep records one planning-cadence model call.
type PlanningStep struct {
	InputMessages []message.Message
	Plan          string
	OutputMessage message.Message
	Timing        Timing
	Tokens        *message.TokenUsage
}

// ActionStep records one iteration of the reason-act-observe loop, shared
// by both agent strategies.
type ActionStep struct {
	StepNumber        int
	Timing             Timing
	InputMessages      []message.Message
	ToolCalls          []message.ToolCall
	Error              *agenterr.Error
	ModelOutput        string
	CodeAction         string
	Observations       string
	ObservationImages  [][]byte
	ActionOutput       any
	Tokens             *message.TokenUsage
	IsFinalAnswer      bool
}

// FinalAnswerStep is a terminal output record: once appended, Memory accepts
// no further steps. The driver does not append one; its max-steps synthesis
// is recorded as an ActionStep carrying a KindMaxSteps error.
type FinalAnswerStep struct {
	Output any
}

func systemPromptStep(s SystemPromptStep) Step { return Step{Kind: KindSystemPrompt, SystemPrompt: &s} }
func taskStep(s TaskStep) Step                 { return Step{Kind: KindTask, Task: &s} }
func planningStep(s PlanningStep) Step         { return Step{Kind: KindPlanning, Planning: &s} }
func actionStep(s ActionStep) Step             { return Step{Kind: KindAction, Action: &s} }
func finalAnswerStep(s FinalAnswerStep) Step   { return Step{Kind: KindFinalAnswer, FinalAnswer: &s} }

// NewSystemPromptStep builds a SystemPromptStep wrapped as a Step.
func NewSystemPromptStep(text string) Step { return systemPromptStep(SystemPromptStep{Text: text}) }

// NewTaskStep builds a TaskStep wrapped as a Step.
func NewTaskStep(task string, images [][]byte) Step {
	return taskStep(TaskStep{Task: task, Images: images})
}

// NewPlanningStep builds a PlanningStep wrapped as a Step.
func NewPlanningStep(s PlanningStep) Step { return planningStep(s) }

// NewActionStep builds an ActionStep wrapped as a Step.
func NewActionStep(s ActionStep) Step { return actionStep(s) }

// NewFinalAnswerStep builds a FinalAnswerStep wrapped as a Step.
func NewFinalAnswerStep(output any) Step { return finalAnswerStep(FinalAnswerStep{Output: output}) }

// ancestorChain returns Kind plus the catch-all "step" tag, per spec.md
// §4.4. Every variant, ActionStep included, is a direct child of "step",
// so a callback registered against "step" matches every appended step.
func (s Step) ancestorChain() []StepKind {
	return []StepKind{s.Kind, "step"}
}
