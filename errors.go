// Package agentruntime - errors.go
// Defines turn and tool errors.

package agentruntime

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSessionClosed      = errors.New("session has been closed")
	ErrRoundLimitExceeded = errors.New("round limit exceeded")
	ErrDuplicateTool      = errors.New("tool already registered")
)

// Values reported as error_type.
const (
	ErrorTypeRoundLimit    = "RoundLimitExceeded"
	ErrorTypeModel         = "ModelInvocationError"
	ErrorTypeSessionClosed = "SessionClosed"
	ErrorTypeCancelled     = "Cancelled"
	ErrorTypeInternal      = "InternalError"
)

type RoundLimitError struct {
	MaxRounds int
}

func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("round limit exceeded: model still requested tools after %d rounds", e.MaxRounds)
}

func (e *RoundLimitError) Is(target error) bool {
	return target == ErrRoundLimitExceeded
}

// ModelInvocationError wraps a failed model call.
type ModelInvocationError struct {
	Err error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation failed: %v", e.Err)
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Err
}

type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool %s", e.Name)
}

type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// IgnorableError marks a tool failure the model should not retry.
type IgnorableError struct {
	Err error
}

func NewIgnorableError(err error) *IgnorableError {
	return &IgnorableError{Err: err}
}

func (e *IgnorableError) Error() string {
	return e.Err.Error()
}

func (e *IgnorableError) Unwrap() error {
	return e.Err
}

// RetryableError marks a tool failure the model may retry with different arguments.
type RetryableError struct {
	Err error
}

func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// ErrorType classifies a turn-level failure for the error envelope.
func ErrorType(err error) string {
	var modelErr *ModelInvocationError
	switch {
	case errors.Is(err, ErrRoundLimitExceeded):
		return ErrorTypeRoundLimit
	case errors.Is(err, ErrSessionClosed):
		return ErrorTypeSessionClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeCancelled
	case errors.As(err, &modelErr):
		return ErrorTypeModel
	default:
		return ErrorTypeInternal
	}
}

// ToolErrorText converts a tool failure into the text the model sees. It is also what MCP clients
// receive for a failed call.
func ToolErrorText(name string, err error) string {
	var ignErr *IgnorableError
	var retErr *RetryableError
	var unknownErr *UnknownToolError
	switch {
	case errors.As(err, &unknownErr):
		return unknownErr.Error()
	case errors.As(err, &ignErr):
		return fmt.Sprintf("Error occurred while running %s. Do not retry", name)
	case errors.As(err, &retErr):
		return fmt.Sprintf("Error: %s.\nRetry", retErr.Error())
	default:
		var execErr *ToolExecutionError
		if errors.As(err, &execErr) {
			err = execErr.Err
		}
		return fmt.Sprintf("Error: %s", err.Error())
	}
}
