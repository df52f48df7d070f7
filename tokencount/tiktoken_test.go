package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentloop/agentloop/message"
)

func TestTiktokenCounterCountText(t *testing.T) {
	c := NewTiktokenCounter()
	assert.Equal(t, 0, c.CountText(""))
	assert.Greater(t, c.CountText("hello world"), 0)
}

func TestTiktokenCounterCachesEncoderPerModel(t *testing.T) {
	c := NewTiktokenCounter()
	_ = c.CountTextForModel("gpt-4", "warm the cache")
	_, ok := c.encoders["gpt-4"]
	assert.True(t, ok)
}

func TestTiktokenCounterCountMessage(t *testing.T) {
	c := NewTiktokenCounter()
	m := message.Message{
		Role: message.RoleAssistant,
		Text: "the result is",
		ToolCalls: []message.ToolCall{
			{ID: "1", Name: "add", Arguments: `{"a":1,"b":2}`},
		},
	}
	assert.Greater(t, c.CountMessage(m), 0)
}

func TestNormalizeModelStripsVendorPrefix(t *testing.T) {
	assert.Equal(t, "claude-3-5-sonnet-20241022", normalizeModel("anthropic/claude-3-5-sonnet-20241022"))
	assert.Equal(t, "gpt-4o", normalizeModel("gpt-4o"))
}
