package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/message"
)

func TestRecordActionAccumulatesTokensAndTime(t *testing.T) {
	m := New()
	start := time.Now()
	m.RecordAction(memory.ActionStep{
		Timing: memory.Timing{Start: start, End: start.Add(2 * time.Second)},
		Tokens: &message.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
	})
	m.RecordAction(memory.ActionStep{
		Timing: memory.Timing{Start: start, End: start.Add(time.Second)},
		Tokens: &message.TokenUsage{PromptTokens: 1, CompletionTokens: 1},
	})

	snap := m.Snapshot()
	assert.Equal(t, 11, snap.PromptTokens)
	assert.Equal(t, 6, snap.CompletionTokens)
	assert.Equal(t, 3*time.Second, snap.WallTime)
	assert.True(t, snap.TokensComplete)
}

func TestRecordActionMissingUsageMarksIncomplete(t *testing.T) {
	m := New()
	m.RecordAction(memory.ActionStep{Timing: memory.Timing{Start: time.Now(), End: time.Now()}})
	snap := m.Snapshot()
	assert.False(t, snap.TokensComplete)
}

func TestRecordPlanningFoldsIntoTotals(t *testing.T) {
	m := New()
	start := time.Now()
	m.RecordPlanning(memory.PlanningStep{
		Timing: memory.Timing{Start: start, End: start.Add(time.Second)},
		Tokens: &message.TokenUsage{PromptTokens: 3, CompletionTokens: 2},
	})
	snap := m.Snapshot()
	assert.Equal(t, 3, snap.PromptTokens)
	assert.Equal(t, 2, snap.CompletionTokens)
}

func TestElapsedGrowsOverTime(t *testing.T) {
	m := New()
	time.Sleep(time.Millisecond)
	assert.Greater(t, m.Elapsed(), time.Duration(0))
}
