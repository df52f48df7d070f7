package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/toolkit"
)

func TestBuildMessagesSeparatesSystemFromTurns(t *testing.T) {
	msgs := []message.Message{
		message.NewSystem("be terse"),
		message.NewUser("hi"),
	}
	out := buildMessages(msgs)
	require.Len(t, out, 1, "system prompt must not appear as a turn")

	system := collectSystem(msgs)
	assert.Equal(t, "be terse", system)
}

func TestBuildMessagesDefaultsToContinueWhenEmpty(t *testing.T) {
	out := buildMessages(nil)
	require.Len(t, out, 1)
}

func TestBuildToolsProjectsNameAndDescription(t *testing.T) {
	tool := toolkit.NewFuncTool("lookup", "looks things up", toolkit.Schema{
		"query": {Types: []toolkit.ParamType{toolkit.TypeString}, Description: "search text"},
	}, toolkit.TypeString, func(ctx context.Context, args map[string]any) (any, error) {
		return "ok", nil
	}, nil)

	out := buildTools([]toolkit.Tool{tool})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	assert.Equal(t, "lookup", out[0].OfTool.Name)
}

func TestBuildParamsDefaultsMaxTokens(t *testing.T) {
	params := buildParams(provider.Request{Model: "claude-3-5-sonnet-latest", Messages: []message.Message{message.NewUser("hi")}})
	assert.EqualValues(t, 4096, params.MaxTokens)
}
