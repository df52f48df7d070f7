package agenterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(KindToolCall, "unknown argument")
	assert.Equal(t, "tool_call: unknown argument", err.Error())
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindExecution, nil))
}

func TestWrapCarriesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindExecution, cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	inner := New(KindToolExec, "setup failed")
	outer := fmt.Errorf("tool %q: %w", "fetch", inner)
	assert.True(t, Is(outer, KindToolExec))
	assert.False(t, Is(outer, KindParsing))
}

func TestRecoverableKinds(t *testing.T) {
	recoverable := []Kind{KindParsing, KindToolCall, KindToolExec, KindExecution, KindInterpreter}
	for _, k := range recoverable {
		assert.True(t, Recoverable(New(k, "x")), "%s should be recoverable", k)
	}
	fatal := []Kind{KindGeneration, KindMaxSteps, KindAgent}
	for _, k := range fatal {
		assert.False(t, Recoverable(New(k, "x")), "%s should be fatal", k)
	}
}

func TestRecoverableFalseForPlainError(t *testing.T) {
	assert.False(t, Recoverable(errors.New("plain")))
}

func TestInterruptedIsFatal(t *testing.T) {
	assert.False(t, Recoverable(Interrupted))
	assert.True(t, Is(Interrupted, KindAgent))
}
