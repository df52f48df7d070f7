package toolcalling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/agent/driver"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/toolkit"
)

type stubProvider struct {
	out      message.Message
	err      error
	toolOkay bool
}

func (s *stubProvider) Generate(ctx context.Context, req provider.Request) (message.Message, error) {
	return s.out, s.err
}
func (s *stubProvider) GenerateStream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	return nil, nil
}
func (s *stubProvider) HealthCheck(ctx context.Context) (provider.HealthStatus, error) {
	return provider.HealthStatus{Healthy: true}, nil
}
func (s *stubProvider) Name() string               { return "stub" }
func (s *stubProvider) SupportsToolCalling() bool   { return s.toolOkay }

func addTool() toolkit.Tool {
	return toolkit.NewFuncTool(
		"add",
		"adds two numbers",
		toolkit.Schema{
			"a": {Types: []toolkit.ParamType{toolkit.TypeNumber}, Description: "first"},
			"b": {Types: []toolkit.ParamType{toolkit.TypeNumber}, Description: "second"},
		},
		toolkit.TypeNumber,
		func(ctx context.Context, args map[string]any) (any, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			return a + b, nil
		},
		nil,
	)
}

func finalAnswerTool() toolkit.Tool {
	return toolkit.NewFuncTool(
		"final_answer",
		"ends the run",
		toolkit.Schema{
			"answer": {Types: []toolkit.ParamType{toolkit.TypeAny}, Description: "the answer"},
		},
		toolkit.TypeAny,
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["answer"], nil
		},
		nil,
	)
}

func newRegistry(t *testing.T, tools ...toolkit.Tool) *toolkit.Registry {
	t.Helper()
	reg := toolkit.NewRegistry()
	for _, tool := range tools {
		require.NoError(t, reg.Register(tool))
	}
	return reg
}

func TestRunStepDispatchesStructuredToolCall(t *testing.T) {
	p := &stubProvider{out: message.Message{
		Role:      message.RoleAssistant,
		ToolCalls: []message.ToolCall{{ID: "1", Name: "add", Arguments: `{"a":2,"b":3}`}},
	}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t, addTool()), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("do math", nil)))

	step, err := agent.RunStep(context.Background(), mem, 1)
	require.NoError(t, err)
	assert.False(t, step.IsFinalAnswer)
	assert.Contains(t, step.Observations, "5")
}

func TestRunStepFallsBackToTextualProtocol(t *testing.T) {
	p := &stubProvider{out: message.Message{Role: message.RoleAssistant, Text: `{"name":"add","arguments":{"a":1,"b":1}}`}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t, addTool()), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("do math", nil)))

	step, err := agent.RunStep(context.Background(), mem, 1)
	require.NoError(t, err)
	assert.Contains(t, step.Observations, "2")
}

func TestRunStepUnparsableContentIsRecoverableParsingError(t *testing.T) {
	p := &stubProvider{out: message.Message{Role: message.RoleAssistant, Text: "not json at all"}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t, addTool()), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("do math", nil)))

	step, err := agent.RunStep(context.Background(), mem, 1)
	require.NoError(t, err) // recoverable: nil driver-facing error
	require.NotNil(t, step.Error)
}

func TestRunStepFinalAnswerTerminatesStep(t *testing.T) {
	p := &stubProvider{out: message.Message{
		Role:      message.RoleAssistant,
		ToolCalls: []message.ToolCall{{ID: "1", Name: "final_answer", Arguments: `{"answer":"done"}`}},
	}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t, finalAnswerTool()), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("finish", nil)))

	step, err := agent.RunStep(context.Background(), mem, 1)
	require.NoError(t, err)
	assert.True(t, step.IsFinalAnswer)
	assert.Equal(t, "done", step.ActionOutput)
}

func TestRunStepFinalAnswerAlongsideOtherCallsIsFatal(t *testing.T) {
	p := &stubProvider{out: message.Message{
		Role: message.RoleAssistant,
		ToolCalls: []message.ToolCall{
			{ID: "1", Name: "add", Arguments: `{"a":1,"b":1}`},
			{ID: "2", Name: "final_answer", Arguments: `{"answer":"done"}`},
		},
	}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t, addTool(), finalAnswerTool()), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("finish", nil)))

	_, err := agent.RunStep(context.Background(), mem, 1)
	assert.Error(t, err)
}

func TestParseFallbackToolCallRejectsNonObjectContent(t *testing.T) {
	_, err := parseFallbackToolCall("hello there")
	assert.Error(t, err)
}

func TestParseFallbackToolCallDefaultsEmptyArguments(t *testing.T) {
	call, err := parseFallbackToolCall(`{"name":"noop"}`)
	require.NoError(t, err)
	assert.Equal(t, "noop", call.Name)
	assert.Equal(t, "{}", call.Arguments)
}
