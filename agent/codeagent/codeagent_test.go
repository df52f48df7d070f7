package codeagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/agent/driver"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
)

type stubProvider struct {
	out message.Message
	err error
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
func (s *stubProvider) Name() string             { return "stub" }
func (s *stubProvider) SupportsToolCalling() bool { return false }

func TestRunStepExecutesCodeAndTerminatesOnFinalAnswer(t *testing.T) {
	p := &stubProvider{out: message.Message{Role: message.RoleAssistant, Text: `<code>final_answer("42")</code>`}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t, addTool()), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("compute", nil)))

	step, err := agent.RunStep(context.Background(), mem, 1)
	require.NoError(t, err)
	assert.True(t, step.IsFinalAnswer)
	assert.Equal(t, "42", step.ActionOutput)
	assert.Contains(t, step.Observations, "Execution logs:")
}

func TestRunStepFinalAnswerArithmeticIsFloat64(t *testing.T) {
	p := &stubProvider{out: message.Message{Role: message.RoleAssistant, Text: "<code>final_answer(2+2)</code>"}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t, addTool()), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("compute 2+2", nil)))

	step, err := agent.RunStep(context.Background(), mem, 1)
	require.NoError(t, err)
	assert.True(t, step.IsFinalAnswer)
	// executor.go's luaToGo maps every Lua number to float64, so the
	// arithmetic result surfaces as float64(4), not int(4).
	assert.Equal(t, float64(4), step.ActionOutput)
}

func TestRunStepParsingErrorIsRecoverable(t *testing.T) {
	p := &stubProvider{out: message.Message{Role: message.RoleAssistant, Text: "not code and not lua ((((("}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("compute", nil)))

	step, err := agent.RunStep(context.Background(), mem, 1)
	require.NoError(t, err)
	require.NotNil(t, step.Error)
}

func TestRunStepExecutionErrorRecordedOnStep(t *testing.T) {
	p := &stubProvider{out: message.Message{Role: message.RoleAssistant, Text: "<code>error('boom')</code>"}}
	agent := New(Config{Provider: p, Model: "m", Registry: newRegistry(t), State: driver.NewAgentState()})

	mem := memory.New("sys")
	require.NoError(t, mem.Append(memory.NewTaskStep("compute", nil)))

	step, err := agent.RunStep(context.Background(), mem, 1)
	require.NoError(t, err)
	require.NotNil(t, step.Error)
	assert.False(t, step.IsFinalAnswer)
}
