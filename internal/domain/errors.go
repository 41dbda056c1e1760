package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrRiskScoring     = errors.New("risk scoring failed")
	ErrTriage          = errors.New("triage evaluation failed")
	ErrProvider        = errors.New("reply provider failed")
)

// Error ties a failure to the session it happened in. It never carries
// message content.
type Error struct {
	Op        string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapSession wraps err with the operation and session id.
func WrapSession(op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, SessionID: sessionID, Err: err}
}

// SessionIDOf extracts the session id attached to err, if any.
func SessionIDOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.SessionID
	}
	return ""
}
