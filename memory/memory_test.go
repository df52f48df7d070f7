package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/agenterr"
	"github.com/agentloop/agentloop/message"
)

func TestToMessagesProjectsSystemAndTask(t *testing.T) {
	m := New("be terse")
	require.NoError(t, m.Append(NewTaskStep("find the answer", nil)))

	msgs := m.ToMessages(false)
	require.Len(t, msgs, 2)
	assert.Equal(t, "be terse", msgs[0].Text)
	assert.Contains(t, msgs[1].Text, "New task:")
	assert.Contains(t, msgs[1].Text, "find the answer")
}

func TestToMessagesSummaryModeDropsSystemAndPlanning(t *testing.T) {
	m := New("be terse")
	require.NoError(t, m.Append(NewPlanningStep(PlanningStep{Plan: "step 1, step 2"})))

	msgs := m.ToMessages(true)
	assert.Empty(t, msgs)
}

func TestToMessagesPlanningStepFullMode(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewPlanningStep(PlanningStep{Plan: "do X then Y"})))

	msgs := m.ToMessages(false)
	require.Len(t, msgs, 3) // system + assistant(plan) + user(proceed)
	assert.Equal(t, "do X then Y", msgs[1].Text)
	assert.Contains(t, msgs[2].Text, "carry out this plan")
}

func TestToMessagesActionStepOmitsModelOutputInSummaryMode(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewActionStep(ActionStep{
		StepNumber:   1,
		ModelOutput:  "thinking...",
		Observations: "42",
	})))

	full := m.ToMessages(false)
	summary := m.ToMessages(true)

	assertContainsText(t, full, "thinking...")
	assertNotContainsText(t, summary, "thinking...")
	assertContainsText(t, summary, "Observation:\n42")
}

func TestToMessagesErrorStepCarriesCallIDAndPrefix(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewActionStep(ActionStep{
		StepNumber: 1,
		ToolCalls:  []message.ToolCall{{ID: "call_abc", Name: "search", Arguments: "{}"}},
		Error:      agenterr.Newf(agenterr.KindToolExec, "boom"),
	})))

	msgs := m.ToMessages(false)
	var errMsg message.Message
	for _, msg := range msgs {
		if strings.Contains(msg.Text, "Now let's retry") {
			errMsg = msg
		}
	}
	require.NotEmpty(t, errMsg.Text)
	assert.Equal(t, "call_abc", errMsg.ToolCallID)
	assert.True(t, strings.HasPrefix(errMsg.Text, "Call id: call_abc\n"))
	assert.Contains(t, errMsg.Text, "boom")
}

func TestToMessagesObservationCarriesCallID(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewActionStep(ActionStep{
		StepNumber:   1,
		ToolCalls:    []message.ToolCall{{ID: "call_xyz", Name: "search", Arguments: "{}"}},
		Observations: "found it",
	})))

	msgs := m.ToMessages(false)
	var obsMsg message.Message
	for _, msg := range msgs {
		if strings.Contains(msg.Text, "Observation:") {
			obsMsg = msg
		}
	}
	require.NotEmpty(t, obsMsg.Text)
	assert.Equal(t, "call_xyz", obsMsg.ToolCallID)
}

func TestToMessagesMultiCallStepOmitsCallID(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewActionStep(ActionStep{
		StepNumber: 1,
		ToolCalls: []message.ToolCall{
			{ID: "call_1", Name: "a", Arguments: "{}"},
			{ID: "call_2", Name: "b", Arguments: "{}"},
		},
		Observations: "both ran",
	})))

	msgs := m.ToMessages(false)
	var obsMsg message.Message
	for _, msg := range msgs {
		if strings.Contains(msg.Text, "Observation:") {
			obsMsg = msg
		}
	}
	require.NotEmpty(t, obsMsg.Text)
	assert.Empty(t, obsMsg.ToolCallID)
}

func assertContainsText(t *testing.T, msgs []message.Message, want string) {
	t.Helper()
	for _, m := range msgs {
		if strings.Contains(m.Text, want) {
			return
		}
	}
	t.Fatalf("no message contains %q", want)
}

func assertNotContainsText(t *testing.T, msgs []message.Message, want string) {
	t.Helper()
	for _, m := range msgs {
		if strings.Contains(m.Text, want) {
			t.Fatalf("message %q unexpectedly contains %q", m.Text, want)
		}
	}
}

func TestActionStepNumberingInvariant(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewActionStep(ActionStep{StepNumber: 1})))
	err := m.Append(NewActionStep(ActionStep{StepNumber: 3}))
	assert.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindAgent))
}

func TestSingleFinalAnswerInvariant(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewActionStep(ActionStep{StepNumber: 1, IsFinalAnswer: true})))
	err := m.Append(NewActionStep(ActionStep{StepNumber: 2, IsFinalAnswer: true}))
	assert.Error(t, err)
}

func TestCannotAppendAfterFinalAnswerStep(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewFinalAnswerStep("done")))
	err := m.Append(NewTaskStep("more", nil))
	assert.Error(t, err)
}

func TestResetClearsStepsButKeepsSystemPrompt(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewActionStep(ActionStep{StepNumber: 1})))
	m.Reset()
	assert.Empty(t, m.Steps())
	msgs := m.ToMessages(false)
	require.Len(t, msgs, 1)
	assert.Equal(t, "sys", msgs[0].Text)
}

func TestForkIsIndependent(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewTaskStep("t", nil)))
	fork := m.Fork()
	require.NoError(t, fork.Append(NewActionStep(ActionStep{StepNumber: 1})))
	assert.Len(t, fork.Steps(), 2)
	assert.Len(t, m.Steps(), 1)
}

func TestSuccinctStepsDropsInputMessages(t *testing.T) {
	m := New("sys")
	require.NoError(t, m.Append(NewActionStep(ActionStep{
		StepNumber:    1,
		InputMessages: nil,
		ModelOutput:   "x",
	})))
	full := m.FullSteps()
	succinct := m.SuccinctSteps()
	require.Len(t, full, 2)
	require.Len(t, succinct, 2)
	_, hasInput := succinct[1]["model_input_messages"]
	assert.False(t, hasInput)
}

func TestCallbackDispatchOnAppend(t *testing.T) {
	m := New("sys")
	var seen []StepKind
	m.Callbacks().OnStepOnly("step", func(step Step) { seen = append(seen, step.Kind) })

	require.NoError(t, m.Append(NewTaskStep("t", nil)))
	require.NoError(t, m.Append(NewActionStep(ActionStep{StepNumber: 1})))

	assert.Equal(t, []StepKind{KindTask, KindAction}, seen)
}

func TestCallbackPanicDoesNotBlockSiblings(t *testing.T) {
	m := New("sys")
	ran := false
	m.Callbacks().OnStepOnly("step", func(step Step) { panic("boom") })
	m.Callbacks().OnStepOnly("step", func(step Step) { ran = true })

	require.NoError(t, m.Append(NewTaskStep("t", nil)))
	assert.True(t, ran)
}
