package task

import "strings"

// State is the client-side view of a remote job.
type State int

const (
	StateUnsubmitted State = iota
	StateSubmitted
	StateRunning
	StateFinished
	StateFailed
	StateNotFound
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateUnsubmitted:
		return "unsubmitted"
	case StateSubmitted:
		return "submitted"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateNotFound:
		return "not_found"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition happens without caller action.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed || s == StateNotFound
}

// StatusCode is the status string reported by the remote service.
type StatusCode string

const (
	StatusQueued   StatusCode = "queued"
	StatusReceived StatusCode = "received"
	StatusRunning  StatusCode = "running"
	StatusDone     StatusCode = "done"
	StatusError    StatusCode = "error"
	StatusNotFound StatusCode = "not_found"
)

// ParseStatusCode normalizes a raw remote status. The service spells the
// missing-job status "not found"; hyphens and spaces both become underscores.
func ParseStatusCode(raw string) StatusCode {
	code := strings.ToLower(strings.TrimSpace(raw))
	code = strings.NewReplacer(" ", "_", "-", "_").Replace(code)
	return StatusCode(code)
}

// state maps a status code to the local state. ok is false for codes this
// client does not know about.
func (c StatusCode) state() (s State, ok bool) {
	switch c {
	case StatusQueued, StatusReceived, StatusRunning:
		return StateRunning, true
	case StatusDone:
		return StateFinished, true
	case StatusError:
		return StateFailed, true
	case StatusNotFound:
		return StateNotFound, true
	default:
		return StateRunning, false
	}
}
