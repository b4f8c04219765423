package feedback

import "errors"

// ErrNoFeedback is raised when an outcome request produces zero accepted
// units. It is reported only after the telemetry record has been finalized.
var ErrNoFeedback = errors.New("no feedback produced")

// Error wraps a failure in the feedback pipeline with its original cause.
type Error struct {
	Message string
	Cause   error
}

// NewError creates a feedback error wrapping cause (which may be nil).
func NewError(message string, cause error) *Error {
	return &Error{Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the original cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}
