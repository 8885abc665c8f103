package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrTransport    = errors.New("transport failure")
	ErrRemote       = errors.New("remote service rejected request")
	ErrTaskFailed   = errors.New("task failed")
	ErrTaskNotFound = errors.New("task not found")
	ErrTimeout      = errors.New("timed out waiting for task")
	ErrInvalidState = errors.New("invalid task state")
	ErrCancelled    = errors.New("cancelled")
)

// TransportError is a connectivity, framing or decoding failure. It never
// changes task state and is always safe to retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RemoteError means the service understood the request and refused it.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote error %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// NotFound reports whether the service said the job does not exist.
func (e *RemoteError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// TaskError is returned when the task is not in a state that can produce
// output. It matches ErrTaskNotFound when the job vanished server-side and
// ErrTaskFailed when the remote computation failed.
type TaskError struct {
	Job        JobRef
	State      State
	LastStatus json.RawMessage
}

func (e *TaskError) Error() string {
	msg := fmt.Sprintf("task %s is %s", e.Job, e.State)
	if len(e.LastStatus) > 0 {
		msg += fmt.Sprintf(" (last status %s)", e.LastStatus)
	}
	return msg
}

func (e *TaskError) Is(target error) bool {
	switch target {
	case ErrTaskNotFound:
		return e.State == StateNotFound
	case ErrTaskFailed:
		return e.State == StateFailed
	}
	return false
}

// TimeoutError is returned by WaitUntilComplete when the budget runs out
// before a terminal state is observed.
type TimeoutError struct {
	Job     JobRef
	Timeout time.Duration
	State   State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s still %s after %s", e.Job, e.State, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// StateError is a local contract violation such as pushing after submit.
type StateError struct {
	Op     string
	State  State
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (task is %s)", e.Op, e.Reason, e.State)
	}
	return fmt.Sprintf("%s: not allowed while task is %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// classify makes sure every error leaving a transport call belongs to the
// taxonomy. Anything the transport did not already classify is treated as a
// transport failure.
func classify(op string, err error) error {
	var transportErr *TransportError
	var remoteErr *RemoteError
	if errors.As(err, &transportErr) || errors.As(err, &remoteErr) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
