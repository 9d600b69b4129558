package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind int

const (
	// UnsupportedCommand reports a command type this engine does not handle.
	UnsupportedCommand Kind = iota + 1
	// InvalidState reports a state snapshot that failed structural
	// validation.
	InvalidState
	// PayloadError reports a malformed or missing payload for the command
	// type.
	PayloadError
	// RngFailure wraps a provider error that aborted the cycle.
	RngFailure
	// ForbiddenCommand reports a debug command rejected in production.
	ForbiddenCommand
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case UnsupportedCommand:
		return "unsupported_command"
	case InvalidState:
		return "invalid_state"
	case PayloadError:
		return "payload_error"
	case RngFailure:
		return "rng_failure"
	case ForbiddenCommand:
		return "forbidden_command"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// EngineError is the failure value of a command cycle. Its message
// identifies the command by id and type so an operator can trace it, and
// never includes payload or state contents.
type EngineError struct {
	Kind        Kind
	CommandID   string
	CommandType CommandType
	Err         error
}

// NewError builds an EngineError for cmd wrapping an underlying cause.
func NewError(kind Kind, cmd Command, err error) *EngineError {
	return &EngineError{Kind: kind, CommandID: cmd.ID, CommandType: cmd.Type, Err: err}
}

// Errorf builds an EngineError for cmd with a formatted message.
func Errorf(kind Kind, cmd Command, format string, args ...any) *EngineError {
	return NewError(kind, cmd, fmt.Errorf(format, args...))
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine: %s command %q: %s", e.CommandType, e.CommandID, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *EngineError) Unwrap() error { return e.Err }

// Is matches on Kind, so callers can test with
// errors.Is(err, &EngineError{Kind: ForbiddenCommand}).
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the EngineError in err's chain, or zero when
// err carries none.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return 0
}
