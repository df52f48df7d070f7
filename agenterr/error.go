// Package agenterr defines the tagged error taxonomy shared by the driver,
// the tool contract, and the code-agent executor (spec.md §7).
package agenterr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in spec.md §7. None of these are
// distinct Go types: a single *Error carries its Kind as data, which keeps
// errors.As/errors.Is working against one umbrella type (Error below)
// while still letting callers switch on Kind for recovery decisions.
type Kind string

const (
	KindParsing     Kind = "parsing"
	KindToolCall    Kind = "tool_call"
	KindToolExec    Kind = "tool_exec"
	KindExecution   Kind = "execution"
	KindGeneration  Kind = "generation"
	KindMaxSteps    Kind = "max_steps"
	KindInterpreter Kind = "interpreter"
	KindAgent       Kind = "agent" // umbrella / catch-all (e.g. interrupt)
)

// Error is the tagged error carried on ActionStep.Error and returned by the
// driver for fatal conditions.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an existing error of the given kind.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Recoverable reports whether the driver should record err on the current
// ActionStep and continue the loop, per spec.md §7's propagation policy.
// Parsing, tool-call, tool-exec and execution (sandbox) errors recover;
// generation, max-steps and interrupt errors are fatal.
func Recoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindParsing, KindToolCall, KindToolExec, KindExecution, KindInterpreter:
		return true
	default:
		return false
	}
}

// Interrupted is the fixed fatal error raised on a detected interrupt
// (spec.md §5 Cancellation, §8 boundary scenario 5).
var Interrupted = New(KindAgent, "Agent interrupted")
