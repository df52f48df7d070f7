// Package codeagent implements the code agent style (spec.md §4.7): a
// driver.StepRunner whose model output is a Lua snippet rather than a
// structured tool call, run through a restricted, non-security-boundary
// local executor. It is grounded on the teacher's llm/tools/react.go step
// shape (generate -> act -> observe), generalized onto the shared
// driver.StepRunner contract the same way agent/toolcalling is, and on the
// gopher-lua sandbox SPEC_FULL.md §12 specifies in place of the source
// system's native-language eval.
package codeagent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentloop/agentloop/agent/driver"
	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/toolkit"
)

const defaultTruncateOutputChars = 5_000

// Config configures an Agent.
type Config struct {
	Provider provider.Provider
	Model    string
	Registry *toolkit.Registry
	State    *driver.AgentState

	Tags             TagConfig
	StructuredOutput bool
	Executor         ExecutorConfig

	// TruncateOutputChars bounds the "Last output from code snippet"
	// portion of the observation. Defaults to 5000 when <= 0.
	TruncateOutputChars int

	Logger *zap.Logger
}

// Agent is a driver.StepRunner implementing the code-agent strategy.
type Agent struct {
	cfg      Config
	executor *Executor
	logger   *zap.Logger
}

// New builds an Agent.
func New(cfg Config) *Agent {
	if cfg.TruncateOutputChars <= 0 {
		cfg.TruncateOutputChars = defaultTruncateOutputChars
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.Tags = cfg.Tags.withDefaults()
	return &Agent{
		cfg:      cfg,
		executor: NewExecutor(cfg.Executor),
		logger:   cfg.Logger.With(zap.String("component", "agent.codeagent")),
	}
}

var _ driver.StepRunner = (*Agent)(nil)

// RunStep implements driver.StepRunner.
func (a *Agent) RunStep(ctx context.Context, mem *memory.Memory, stepNumber int) (memory.ActionStep, error) {
	step := memory.ActionStep{InputMessages: mem.ToMessages(false)}

	req := provider.Request{
		Model:         a.cfg.Model,
		Messages:      step.InputMessages,
		StopSequences: a.cfg.Tags.StopSequence(),
	}
	out, err := a.cfg.Provider.Generate(ctx, req)
	if err != nil {
		wrapped := agenterr.Wrap(agenterr.KindGeneration, err)
		step.Error = wrapped
		return step, wrapped
	}
	step.ModelOutput = out.Text
	step.Tokens = out.Usage

	code, err := extractCode(out.Text, a.cfg.Tags, a.cfg.StructuredOutput)
	if err != nil {
		var parseErr *agenterr.Error
		if !errors.As(err, &parseErr) {
			parseErr = agenterr.Wrap(agenterr.KindParsing, err)
		}
		step.Error = parseErr
		return step, nil
	}
	step.CodeAction = code

	result, runErr := a.executor.Run(ctx, code, a.cfg.Registry, a.cfg.State)
	if runErr != nil {
		var execErr *agenterr.Error
		if !errors.As(runErr, &execErr) {
			execErr = agenterr.Wrap(agenterr.KindExecution, runErr)
		}
		step.Error = execErr
		step.Observations = fmt.Sprintf("Execution logs:\n%s\nLast output from code snippet:\nnull", result.Logs)
		return step, nil
	}

	step.Observations = fmt.Sprintf("Execution logs:\n%s\nLast output from code snippet:\n%s",
		result.Logs, truncateString(fmt.Sprint(result.Output), a.cfg.TruncateOutputChars))

	if result.IsFinalAnswer {
		step.IsFinalAnswer = true
		step.ActionOutput = result.Output
	}
	return step, nil
}
