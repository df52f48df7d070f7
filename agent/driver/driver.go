// Package driver implements the shared multi-step reason-act-observe loop
// (spec.md §4.5) that both the tool-calling and code agent styles drive
// through a common StepRunner contract, plus the planning cadence,
// max-steps synthesis, RunResult aggregation and cooperative interrupt
// spec.md §5 describes. It is grounded on the teacher's
// llm/tools/react.go "LLM -> Tool -> LLM" loop shape, generalized from a
// single provider-bound executor into a driver that owns only the loop
// itself and delegates one step's work to a StepRunner.
package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/monitor"
	"github.com/agentloop/agentloop/provider"
)

var tracer = otel.Tracer("agentloop")

// StepRecorder is the subset of observability.Collector's surface the
// driver loop needs. Declaring it here instead of importing observability
// keeps driver free of a dependency on the metrics package;
// *observability.Collector satisfies this interface structurally.
type StepRecorder interface {
	RecordStep(agentStyle, outcome string, duration time.Duration)
}

// FinalAnswerCheck validates a candidate final answer before the step that
// produced it is allowed to terminate the run. Returning a non-nil error
// fails the step with an AgentError, per spec.md §4.5.
type FinalAnswerCheck func(value any, mem *memory.Memory) error

// StepRunner is implemented by each agent style (tool-calling, code) to
// supply the body of one loop iteration. RunStep must not mutate
// StepNumber or Timing on the returned step; the driver owns both. A
// non-nil returned error is fatal (agenterr.Recoverable(err) == false);
// recoverable per-step failures are instead recorded on
// ActionStep.Error and the returned step is still appended so the next
// iteration can retry with the error visible in memory.
type StepRunner interface {
	RunStep(ctx context.Context, mem *memory.Memory, stepNumber int) (memory.ActionStep, error)
}

// Config configures a Driver.
type Config struct {
	MaxSteps          int
	PlanningInterval  int // 0 disables planning steps
	FinalAnswerChecks []FinalAnswerCheck

	// Provider and Model back the planning cadence and the max-steps
	// synthesis call; agent styles make their own provider calls inside
	// RunStep and do not need these.
	Provider provider.Provider
	Model    string

	PlanningPromptInitial string
	PlanningPromptUpdate  string

	MaxStepsPreMessagesPrompt  string
	MaxStepsPostMessagesPrompt string

	Monitor *monitor.Monitor
	Logger  *zap.Logger

	// AgentStyle labels Metrics recordings ("tool_calling" or "code"); it
	// has no effect unless Metrics is also set.
	AgentStyle string
	Metrics    StepRecorder
}

// RunResult is the outcome of Driver.Run, aggregating token usage and wall
// time across every action and planning step (spec.md §4.5).
type RunResult struct {
	Output         any
	State          string // "success" or "max_steps_error"
	PromptTokens   int
	CompletionTokens int
	TokensComplete bool
	WallTime       time.Duration
	Steps          int
}

const (
	StateSuccess      = "success"
	StateMaxStepsError = "max_steps_error"
)

// Driver runs the shared step loop against a StepRunner.
type Driver struct {
	cfg         Config
	interrupted atomic.Bool
	logger      *zap.Logger
}

// New builds a Driver. cfg.MaxSteps defaults to 20 when unset.
func New(cfg Config) *Driver {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Monitor == nil {
		cfg.Monitor = monitor.New()
	}
	return &Driver{cfg: cfg, logger: cfg.Logger.With(zap.String("component", "agent.driver"))}
}

// Interrupt flips a flag read at the top of every loop iteration; the next
// iteration boundary raises a fatal agenterr.Interrupted.
func (d *Driver) Interrupt() {
	d.interrupted.Store(true)
}

// Run drives runner through the full step loop for task.
func (d *Driver) Run(ctx context.Context, mem *memory.Memory, task string, images [][]byte, runner StepRunner) (RunResult, error) {
	mem.Append(memory.NewTaskStep(task, images))

	stepNumber := 1
	for {
		if d.interrupted.Load() {
			return RunResult{}, agenterr.Interrupted
		}

		if d.cfg.PlanningInterval > 0 && (stepNumber == 1 || (stepNumber-1)%d.cfg.PlanningInterval == 0) {
			planStep, err := d.runPlanning(ctx, mem, stepNumber)
			if err != nil {
				return RunResult{}, err
			}
			if err := mem.Append(memory.NewPlanningStep(planStep)); err != nil {
				return RunResult{}, err
			}
			d.cfg.Monitor.RecordPlanning(planStep)
		}

		if d.interrupted.Load() {
			return RunResult{}, agenterr.Interrupted
		}

		ctx, span := tracer.Start(ctx, "agentloop.action_step", trace.WithAttributes(attribute.Int("agentloop.step_number", stepNumber)))
		start := time.Now()
		step, runErr := runner.RunStep(ctx, mem, stepNumber)
		step.StepNumber = stepNumber
		step.Timing = memory.Timing{Start: start, End: time.Now()}
		if step.Tokens != nil {
			span.SetAttributes(attribute.Int("agentloop.prompt_tokens", step.Tokens.PromptTokens), attribute.Int("agentloop.completion_tokens", step.Tokens.CompletionTokens))
		}
		span.End()

		if runErr != nil && !agenterr.Recoverable(runErr) {
			return RunResult{}, runErr
		}

		if step.IsFinalAnswer {
			for _, check := range d.cfg.FinalAnswerChecks {
				if err := check(step.ActionOutput, mem); err != nil {
					step.IsFinalAnswer = false
					step.Error = agenterr.Wrap(agenterr.KindAgent, err)
				}
			}
		}

		if err := mem.Append(memory.NewActionStep(step)); err != nil {
			return RunResult{}, err
		}
		d.cfg.Monitor.RecordAction(step)
		d.recordStep(step)

		if step.IsFinalAnswer {
			totals := d.cfg.Monitor.Snapshot()
			return RunResult{
				Output: step.ActionOutput, State: StateSuccess,
				PromptTokens: totals.PromptTokens, CompletionTokens: totals.CompletionTokens,
				TokensComplete: totals.TokensComplete, WallTime: d.cfg.Monitor.Elapsed(), Steps: stepNumber,
			}, nil
		}

		stepNumber++
		if stepNumber > d.cfg.MaxSteps {
			return d.synthesizeMaxSteps(ctx, mem, stepNumber-1)
		}
	}
}

// recordStep classifies step for Metrics: "ok" when no error was recorded,
// "recoverable_error" when the step carries an error the loop continued
// past, "fatal_error" when the error's kind is not recoverable. Two such
// steps reach here: the max-steps synthesis step, and a step whose final
// answer a FinalAnswerCheck rejected (the loop continues after the latter).
// Any other fatal StepRunner error returns before an ActionStep is appended.
func (d *Driver) recordStep(step memory.ActionStep) {
	if d.cfg.Metrics == nil {
		return
	}
	outcome := "ok"
	if step.Error != nil {
		outcome = "recoverable_error"
		if !agenterr.Recoverable(step.Error) {
			outcome = "fatal_error"
		}
	}
	d.cfg.Metrics.RecordStep(d.cfg.AgentStyle, outcome, step.Timing.End.Sub(step.Timing.Start))
}

func (d *Driver) runPlanning(ctx context.Context, mem *memory.Memory, stepNumber int) (memory.PlanningStep, error) {
	if d.cfg.Provider == nil {
		return memory.PlanningStep{}, agenterr.New(agenterr.KindGeneration, "planning requires a configured provider")
	}
	tmpl := d.cfg.PlanningPromptInitial
	if stepNumber != 1 && d.cfg.PlanningPromptUpdate != "" {
		tmpl = d.cfg.PlanningPromptUpdate
	}
	inputMessages := append(mem.ToMessages(false), message.NewUser(tmpl))

	start := time.Now()
	out, err := d.cfg.Provider.Generate(ctx, provider.Request{
		Model: d.cfg.Model, Messages: inputMessages, StopSequences: []string{"<end_plan>"},
	})
	if err != nil {
		return memory.PlanningStep{}, agenterr.Wrap(agenterr.KindGeneration, err)
	}
	return memory.PlanningStep{
		InputMessages: inputMessages, Plan: out.Text, OutputMessage: out,
		Timing: memory.Timing{Start: start, End: time.Now()}, Tokens: out.Usage,
	}, nil
}

func (d *Driver) synthesizeMaxSteps(ctx context.Context, mem *memory.Memory, lastStep int) (RunResult, error) {
	if d.cfg.Provider == nil {
		return RunResult{}, agenterr.New(agenterr.KindMaxSteps, "max steps reached and no provider configured for synthesis")
	}
	messages := make([]message.Message, 0, len(mem.ToMessages(false))+2)
	if d.cfg.MaxStepsPreMessagesPrompt != "" {
		messages = append(messages, message.NewSystem(d.cfg.MaxStepsPreMessagesPrompt))
	}
	messages = append(messages, mem.ToMessages(false)...)
	if d.cfg.MaxStepsPostMessagesPrompt != "" {
		messages = append(messages, message.NewUser(d.cfg.MaxStepsPostMessagesPrompt))
	}

	start := time.Now()
	out, err := d.cfg.Provider.Generate(ctx, provider.Request{Model: d.cfg.Model, Messages: messages})
	if err != nil {
		return RunResult{}, agenterr.Wrap(agenterr.KindMaxSteps, fmt.Errorf("max-steps synthesis: %w", err))
	}

	// spec.md §8's max-steps boundary scenario requires the synthesized
	// step to carry error.kind == "MaxStepsError"; smolagents folds the
	// synthesis into one more ActionStep rather than a distinct terminal
	// step kind.
	step := memory.ActionStep{
		StepNumber:    lastStep + 1,
		Timing:        memory.Timing{Start: start, End: time.Now()},
		InputMessages: messages,
		ModelOutput:   out.Text,
		ActionOutput:  out.Text,
		Tokens:        out.Usage,
		IsFinalAnswer: true,
		Error:         agenterr.New(agenterr.KindMaxSteps, "max steps reached before a final answer was produced"),
	}
	if err := mem.Append(memory.NewActionStep(step)); err != nil {
		return RunResult{}, err
	}
	d.cfg.Monitor.RecordAction(step)
	d.recordStep(step)

	totals := d.cfg.Monitor.Snapshot()
	return RunResult{
		Output: out.Text, State: StateMaxStepsError,
		PromptTokens: totals.PromptTokens, CompletionTokens: totals.CompletionTokens,
		TokensComplete: totals.TokensComplete, WallTime: d.cfg.Monitor.Elapsed(), Steps: lastStep + 1,
	}, nil
}
