package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleResult is returned when a reset or switch overtook an
	// in-flight operation and its result was discarded
	ErrStaleResult = errors.New("session changed while operation was in flight")

	// ErrNoSessionID is returned by remote operations on sessions that
	// have no remote identity
	ErrNoSessionID = errors.New("session has no remote id")
)

// ExecutorError reports a transport or service failure for one command
type ExecutorError struct {
	Command string
	Err     error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor error [%s]: %v", e.Command, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// TierError represents a failure reading or writing one storage tier
type TierError struct {
	Tier string // "memory", "durable", "remote"
	Key  string
	Op   string // "read", "write", "parse", "clear"
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("%s tier error: %s %s: %v", e.Tier, e.Op, e.Key, e.Err)
}

func (e *TierError) Unwrap() error {
	return e.Err
}

// RemoteError represents a failed call to the remote API
type RemoteError struct {
	Op         string
	SessionID  string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote error [%s] %s: status %d: %v", e.Op, e.SessionID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote error [%s] %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// TransitionError is returned for an event the session state machine
// does not accept in its current phase
type TransitionError struct {
	From  Phase
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s in phase %s", e.Event, e.From)
}
