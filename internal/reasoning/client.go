// Package reasoning talks to the external reasoning collaborator through
// a submit/poll protocol. The collaborator is opaque: callers hand it a
// prompt, receive a session handle, and poll until the session reaches a
// terminal status. Interpretation of the returned text belongs to the
// caller, never to this package.
package reasoning

import (
	"context"
	"fmt"
)

// Status of a submitted reasoning session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the session can no longer change status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Handle identifies one submitted session for later polling.
type Handle string

// PollResult is a snapshot of a session. ResultText is populated only
// when Status is completed; FailureReason only on failed, cancelled, or
// expired sessions.
type PollResult struct {
	Status        Status
	ResultText    string
	FailureReason string
}

// Client is the submit/poll/cancel surface of the collaborator.
// Cancel on an already terminal or unknown session is a no-op.
type Client interface {
	Submit(ctx context.Context, prompt string) (Handle, error)
	Poll(ctx context.Context, h Handle) (PollResult, error)
	Cancel(ctx context.Context, h Handle) error
}

// TransientServiceError covers connectivity loss, rate limiting, and
// timeouts: failures a bounded resubmission may resolve. Retry policy
// lives with the caller, not here.
type TransientServiceError struct {
	Op  string
	Err error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientServiceError) Unwrap() error { return e.Err }

// TerminalServiceError reports that the collaborator itself ended the
// session without a result: failed, cancelled, or expired.
type TerminalServiceError struct {
	Status Status
	Reason string
}

func (e *TerminalServiceError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("session ended %s", e.Status)
	}
	return fmt.Sprintf("session ended %s: %s", e.Status, e.Reason)
}
