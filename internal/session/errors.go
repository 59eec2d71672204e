package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for a session id.
	// Callers decide whether to create a fresh session instead.
	ErrNotFound = errors.New("session not found")

	// ErrCorruptRecord marks a persisted record that cannot be parsed.
	// Listings skip such records; point reads surface the error.
	ErrCorruptRecord = errors.New("corrupt session record")

	// ErrUnavailable is the errors.Is target for UnavailableError.
	ErrUnavailable = errors.New("session unavailable")
)

// Rejection reasons carried by UnavailableError.
const (
	ReasonExpired     = "expired"
	ReasonClosed      = "closed"
	ReasonMaxAttempts = "max attempts exceeded"
)

// UnavailableError rejects an operation against a terminal session.
// Reason tells the caller why so it can create a new session instead
// of retrying this one.
type UnavailableError struct {
	SessionID string
	Reason    string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("session %s unavailable: %s", e.SessionID, e.Reason)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable builds an UnavailableError for id with the given reason.
func Unavailable(id, reason string) *UnavailableError {
	return &UnavailableError{SessionID: id, Reason: reason}
}

// UnavailableReason derives the rejection reason for a terminal state.
func UnavailableReason(s State) string {
	if s == StateClosed {
		return ReasonClosed
	}
	return ReasonExpired
}

// TransportError wraps a probe or handshake I/O failure. It is
// retryable: it drives state transitions and is never fatal to the
// session itself.
type TransportError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed for session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StoreError wraps a disk failure in the session store. The in-memory
// view is never updated when the durable write failed, so persisted
// and observable state always agree.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
