package collab

import "errors"

var (
	// ErrPermissionDenied is returned synchronously when the current role
	// does not allow the attempted operation. It never reaches the gateway.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is returned when the referenced entity is not in the
	// local working set.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthenticated is returned when no session is active.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSuperseded resolves operations that were still pending when a full
	// refresh replaced the working set; their outcome is unknowable locally.
	ErrSuperseded = errors.New("superseded by refresh")
)

// ValidationError reports bad input. Resolved locally, never a system fault.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
