package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAgglomerateContentConcatenation(t *testing.T) {
	deltas := []Delta{
		{Content: "The "},
		{Content: "answer "},
		{Content: "is 4."},
	}
	m := Agglomerate(deltas, RoleAssistant)
	assert.Equal(t, "The answer is 4.", m.Text)
	assert.Nil(t, m.ToolCalls)
}

func TestAgglomerateToolCallFirstWriteWins(t *testing.T) {
	deltas := []Delta{
		{ToolCalls: []ToolCallDelta{{Index: 0, ID: "call_1", Type: "function", Name: "ad"}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, ID: "call_2", Name: "d", Arguments: `{"a"`}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, Arguments: `:1}`}}},
	}
	m := Agglomerate(deltas, RoleAssistant)
	require.Len(t, m.ToolCalls, 1)
	assert.Equal(t, "call_1", m.ToolCalls[0].ID, "first non-empty ID wins")
	assert.Equal(t, "add", m.ToolCalls[0].Name, "name fragments append in arrival order")
	assert.Equal(t, `{"a":1}`, m.ToolCalls[0].Arguments)
}

func TestAgglomerateOrdersToolCallsByIndex(t *testing.T) {
	deltas := []Delta{
		{ToolCalls: []ToolCallDelta{{Index: 1, ID: "b", Name: "second"}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, ID: "a", Name: "first"}}},
	}
	m := Agglomerate(deltas, RoleAssistant)
	require.Len(t, m.ToolCalls, 2)
	assert.Equal(t, "first", m.ToolCalls[0].Name)
	assert.Equal(t, "second", m.ToolCalls[1].Name)
}

func TestAgglomerateSumsUsage(t *testing.T) {
	deltas := []Delta{
		{Usage: &TokenUsage{PromptTokens: 10, CompletionTokens: 0}},
		{Usage: &TokenUsage{PromptTokens: 0, CompletionTokens: 5}},
	}
	m := Agglomerate(deltas, RoleAssistant)
	require.NotNil(t, m.Usage)
	assert.Equal(t, 10, m.Usage.PromptTokens)
	assert.Equal(t, 5, m.Usage.CompletionTokens)
}

func TestAgglomerateOmitsUsageWhenAbsent(t *testing.T) {
	m := Agglomerate([]Delta{{Content: "hi"}}, RoleAssistant)
	assert.Nil(t, m.Usage)
}

func TestAgglomerateDefaultsRoleToAssistant(t *testing.T) {
	m := Agglomerate([]Delta{{Content: "hi"}}, "")
	assert.Equal(t, RoleAssistant, m.Role)
}

// chunkString splits s into n pieces at arbitrary boundaries, preserving
// order, so a property test can confirm that how a stream happens to
// fragment a value never changes the agglomerated result.
func chunkString(t *rapid.T, s string, label string) []string {
	if s == "" {
		return []string{""}
	}
	n := rapid.IntRange(1, len(s)+1).Draw(t, label+"/n")
	cuts := make([]int, 0, n-1)
	for i := 0; i < n-1; i++ {
		cuts = append(cuts, rapid.IntRange(0, len(s)).Draw(t, label+"/cut"))
	}
	sortInts(cuts)
	pieces := make([]string, 0, n)
	prev := 0
	for _, c := range cuts {
		pieces = append(pieces, s[prev:c])
		prev = c
	}
	pieces = append(pieces, s[prev:])
	return pieces
}

// TestAgglomerateIndependentOfFragmentation checks spec.md §8's invariant:
// for a fixed final content string and a fixed final tool-call arguments
// string, the way a stream happens to chop them into delta fragments never
// changes the agglomerated message — concatenation is associative
// regardless of the partition.
func TestAgglomerateIndependentOfFragmentation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringOfN(rapid.RuneFrom([]rune("abc def ")), 0, 20, -1).Draw(t, "content")
		args := rapid.StringOfN(rapid.RuneFrom([]rune(`{}":,1a `)), 0, 20, -1).Draw(t, "args")

		contentPieces := chunkString(t, content, "content")
		argPieces := chunkString(t, args, "args")

		deltas := make([]Delta, 0, len(contentPieces)+len(argPieces))
		for _, c := range contentPieces {
			deltas = append(deltas, Delta{Content: c})
		}
		for i, a := range argPieces {
			d := Delta{ToolCalls: []ToolCallDelta{{Index: 0, Arguments: a}}}
			if i == 0 {
				d.ToolCalls[0].ID = "call_1"
			}
			deltas = append(deltas, d)
		}

		got := Agglomerate(deltas, RoleAssistant)

		if got.Text != content {
			t.Fatalf("content mismatch: got=%q want=%q", got.Text, content)
		}
		if len(got.ToolCalls) != 1 || got.ToolCalls[0].Arguments != args {
			t.Fatalf("arguments mismatch: got=%+v want=%q", got.ToolCalls, args)
		}
	})
}
