package agentloop

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTool is returned by Register when the name is taken.
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrInvalidTool is returned by Register for a tool without a name or handler.
	ErrInvalidTool = errors.New("invalid tool")
	// ErrUnknownTool is returned by Invoke when no tool has the requested name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments marks arguments that could not be bound to a tool.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrToolTimeout marks a tool invocation that outlived its deadline.
	ErrToolTimeout = errors.New("tool timed out")
	// ErrSessionClosed is returned by Run after Close.
	ErrSessionClosed = errors.New("session is closed")
	// ErrSessionNotFound is returned by Manager lookups for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
)

// ArgumentError describes why a tool call's arguments were rejected.
// Field is the JSON name of the offending argument, empty when the payload
// as a whole is malformed.
type ArgumentError struct {
	Tool   string
	Field  string
	Reason string
	Err    error
}

func (e *ArgumentError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrInvalidArguments, e.Tool)
	if e.Field != "" {
		msg += fmt.Sprintf(": %s", e.Field)
	}
	msg += ": " + e.Reason
	return msg
}

func (e *ArgumentError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidArguments}
	}
	return []error{ErrInvalidArguments, e.Err}
}
