package sync

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed exchange with the remote API.
type ErrorKind int

const (
	// Unauthorized: token missing, expired or revoked. The session store
	// must re-verify before anything else is retried.
	Unauthorized ErrorKind = iota
	// NotFound: the entity no longer exists remotely.
	NotFound
	// Conflict: remote state diverged (e.g. a collaborator changed the
	// caller's role mid-flight). Callers refetch instead of rolling back.
	Conflict
	// NetworkFailure: the request never produced a server response.
	NetworkFailure
	// ServerError: the server answered but could not complete the request.
	ServerError
)

var kindNames = map[ErrorKind]string{
	Unauthorized:   "unauthorized",
	NotFound:       "not found",
	Conflict:       "conflict",
	NetworkFailure: "network failure",
	ServerError:    "server error",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the normalized failure shape every gateway call returns.
type Error struct {
	Kind    ErrorKind
	Op      string // e.g. "POST /list"
	Message string // server-provided message, if any
	Err     error  // underlying transport error, if any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("sync: %s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("sync: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sync: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err. ok is false if err is not a
// gateway error.
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, k ErrorKind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
