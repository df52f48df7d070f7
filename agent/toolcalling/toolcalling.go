// Package toolcalling implements the tool-calling agent style (spec.md
// §4.6): a driver.StepRunner that writes memory to messages, asks the model
// for structured or fallback-textual tool calls, fans them out onto a
// bounded worker pool, and joins the results back in call order. It is
// grounded on the teacher's llm/tools/react.go "LLM -> Tool -> LLM" step
// body and llm/tools/parallel.go's ParallelExecutor fan-out, generalized
// onto the shared driver.StepRunner contract instead of owning its own
// outer loop.
package toolcalling

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/agentloop/agentloop/agent/driver"
	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/toolkit"
	"github.com/agentloop/agentloop/typedvalue"
)

// FinalAnswerToolName is the reserved tool name that terminates a run.
const FinalAnswerToolName = "final_answer"

// stopSequences are appended to every model call per spec.md §4.6 step 1.
var stopSequences = []string{"Observation:", "Calling tools:"}

// SubAgentRunner resolves a name that isn't a registered tool to a managed
// sub-agent invocation, returning its textual result.
type SubAgentRunner func(ctx context.Context, name string, task string) (string, error)

// Config configures an Agent.
type Config struct {
	Provider provider.Provider
	Model    string
	Registry *toolkit.Registry
	State    *driver.AgentState

	// Streaming requests a streaming call when the provider supports tool
	// calling; deltas are agglomerated into one message (spec.md §4.1)
	// before the step proceeds. Ignored when the provider cannot stream
	// structured tool calls.
	Streaming bool

	// MaxToolThreads bounds the number of tool calls run concurrently
	// within one step; <= 1 runs them sequentially in call order.
	MaxToolThreads int

	SubAgents SubAgentRunner

	Logger *zap.Logger
}

// Agent is a driver.StepRunner implementing the tool-calling strategy.
type Agent struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an Agent.
func New(cfg Config) *Agent {
	if cfg.MaxToolThreads <= 0 {
		cfg.MaxToolThreads = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Agent{cfg: cfg, logger: cfg.Logger.With(zap.String("component", "agent.toolcalling"))}
}

var _ driver.StepRunner = (*Agent)(nil)

// RunStep implements driver.StepRunner.
func (a *Agent) RunStep(ctx context.Context, mem *memory.Memory, stepNumber int) (memory.ActionStep, error) {
	step := memory.ActionStep{InputMessages: mem.ToMessages(false)}

	req := provider.Request{
		Model:         a.cfg.Model,
		Messages:      step.InputMessages,
		StopSequences: stopSequences,
		Tools:         a.cfg.Registry.All(),
	}

	out, err := a.generate(ctx, req)
	if err != nil {
		wrapped := agenterr.Wrap(agenterr.KindGeneration, err)
		step.Error = wrapped
		return step, wrapped
	}
	step.ModelOutput = out.Text
	step.Tokens = out.Usage

	calls := out.ToolCalls
	if len(calls) == 0 {
		call, perr := parseFallbackToolCall(out.Text)
		if perr != nil {
			step.Error = agenterr.Wrap(agenterr.KindParsing, perr)
			return step, nil
		}
		calls = []message.ToolCall{call}
	}
	step.ToolCalls = calls

	finalIdx := -1
	for i, c := range calls {
		if c.Name == FinalAnswerToolName {
			finalIdx = i
		}
	}
	if finalIdx >= 0 && len(calls) > 1 {
		fatal := agenterr.Newf(agenterr.KindAgent, "step %d: final_answer called alongside %d other tool call(s)", stepNumber, len(calls)-1)
		step.Error = fatal
		return step, fatal
	}

	results := a.dispatch(ctx, calls)

	var obs strings.Builder
	var images [][]byte
	var callErr *multierror.Error
	for i, r := range results {
		if i > 0 {
			obs.WriteString("\n")
		}
		obs.WriteString(fmt.Sprintf("Call %s: %s", calls[i].Name, r.observation()))
		images = append(images, r.images...)
		if r.err != nil {
			callErr = multierror.Append(callErr, fmt.Errorf("%s: %w", calls[i].Name, r.err))
		}
	}
	step.Observations = obs.String()
	step.ObservationImages = images

	if finalIdx >= 0 && results[finalIdx].err == nil {
		step.IsFinalAnswer = true
		step.ActionOutput = results[finalIdx].value
	}

	if callErr != nil {
		step.Error = agenterr.Wrap(agenterr.KindToolExec, callErr.ErrorOrNil())
	}
	return step, nil
}

func (a *Agent) generate(ctx context.Context, req provider.Request) (message.Message, error) {
	if !a.cfg.Streaming || !a.cfg.Provider.SupportsToolCalling() {
		return a.cfg.Provider.Generate(ctx, req)
	}

	events, err := a.cfg.Provider.GenerateStream(ctx, req)
	if err != nil {
		return message.Message{}, err
	}
	var deltas []message.Delta
	for ev := range events {
		if ev.Err != nil {
			return message.Message{}, ev.Err
		}
		deltas = append(deltas, ev.Delta)
	}
	return message.Agglomerate(deltas, message.RoleAssistant), nil
}

// parseFallbackToolCall implements spec.md §4.6 step 2: when the model
// returns no structured tool call, its content text is parsed as a JSON
// object `{name, arguments}`.
func parseFallbackToolCall(content string) (message.ToolCall, error) {
	trimmed := strings.TrimSpace(content)
	result := gjson.Parse(trimmed)
	name := result.Get("name").String()
	if !result.IsObject() || name == "" {
		return message.ToolCall{}, fmt.Errorf("toolcalling: content is not a {name, arguments} tool call: %q", trimmed)
	}
	args := result.Get("arguments")
	argStr := "{}"
	if args.Exists() {
		argStr = args.Raw
	}
	return message.ToolCall{Name: name, Arguments: argStr}, nil
}

type callResult struct {
	value  any
	err    error
	images [][]byte
}

// observation renders the per-call result as the text fragment concatenated
// into the step's Observations field (spec.md §4.6 step 7).
func (r callResult) observation() string {
	if r.err != nil {
		return r.err.Error()
	}
	switch v := r.value.(type) {
	case typedvalue.Value:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// dispatch runs every call through the registry, bounded by
// cfg.MaxToolThreads, and returns results ordered identically to calls
// regardless of completion order (spec.md §4.6 step 4).
func (a *Agent) dispatch(ctx context.Context, calls []message.ToolCall) []callResult {
	results := make([]callResult, len(calls))
	if a.cfg.MaxToolThreads <= 1 {
		for i, call := range calls {
			results[i] = a.invokeOne(ctx, call)
		}
		return results
	}
	sem := semaphore.NewWeighted(int64(a.cfg.MaxToolThreads))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call message.ToolCall) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = callResult{err: fmt.Errorf("toolcalling: %w", err)}
				return
			}
			defer sem.Release(1)
			results[i] = a.invokeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (a *Agent) invokeOne(ctx context.Context, call message.ToolCall) callResult {
	args, err := call.ParsedArguments()
	if err != nil {
		return callResult{err: agenterr.Wrap(agenterr.KindToolCall, err)}
	}

	if _, ok := a.cfg.Registry.Get(call.Name); !ok && a.cfg.SubAgents != nil {
		task, _ := args["task"].(string)
		out, err := a.cfg.SubAgents(ctx, call.Name, task)
		if err != nil {
			return callResult{err: err}
		}
		return callResult{value: out}
	}

	var store func(kind typedvalue.Kind, raw []byte, mime string) string
	if a.cfg.State != nil {
		store = a.cfg.State.Store
	}

	out, err := a.cfg.Registry.Invoke(ctx, call.Name, args, true, store)
	if err != nil {
		return callResult{err: err}
	}

	result := callResult{value: out}
	if v, ok := out.(typedvalue.Value); ok && v.Kind() == typedvalue.KindImage {
		if raw, ok := v.Raw().([]byte); ok {
			result.images = [][]byte{raw}
		}
	}
	return result
}
