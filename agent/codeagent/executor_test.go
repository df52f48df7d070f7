package codeagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/agent/driver"
	"github.com/agentloop/agentloop/toolkit"
)

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

func newRegistry(t *testing.T, tools ...toolkit.Tool) *toolkit.Registry {
	t.Helper()
	reg := toolkit.NewRegistry()
	for _, tool := range tools {
		require.NoError(t, reg.Register(tool))
	}
	return reg
}

func TestExecutorReturnsLastStatementValue(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{})
	result, err := exec.Run(context.Background(), "return 1 + 1", nil, driver.NewAgentState())
	require.NoError(t, err)
	assert.Equal(t, float64(2), result.Output)
	assert.False(t, result.IsFinalAnswer)
}

func TestExecutorCapturesPrintIntoLogs(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{})
	result, err := exec.Run(context.Background(), `print("hello") return nil`, nil, driver.NewAgentState())
	require.NoError(t, err)
	assert.Contains(t, result.Logs, "hello")
}

func TestExecutorFinalAnswerSetsIsFinalAnswer(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{})
	result, err := exec.Run(context.Background(), `final_answer("done")`, nil, driver.NewAgentState())
	require.NoError(t, err)
	assert.True(t, result.IsFinalAnswer)
	assert.Equal(t, "done", result.Output)
}

func TestExecutorInjectsRegisteredToolsAsGlobals(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{})
	reg := newRegistry(t, addTool())
	result, err := exec.Run(context.Background(), `return add({a = 2, b = 3})`, reg, driver.NewAgentState())
	require.NoError(t, err)
	assert.Equal(t, float64(5), result.Output)
}

func TestExecutorSyntaxErrorIsExecutionError(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{})
	_, err := exec.Run(context.Background(), "this is not valid lua ((((", nil, driver.NewAgentState())
	assert.Error(t, err)
}

func TestExecutorOsLibraryNotOpenedByDefault(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{})
	_, err := exec.Run(context.Background(), `return os.time()`, nil, driver.NewAgentState())
	assert.Error(t, err)
}

func TestExecutorTruncatesLongLogs(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{MaxPrintOutputsLength: 5})
	result, err := exec.Run(context.Background(), `print("abcdefghijklmnop") return nil`, nil, driver.NewAgentState())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Logs), 30)
}
