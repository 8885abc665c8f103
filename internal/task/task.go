package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kelsos/bosonnlp-go/internal/logger"
)

// DefaultNotFoundGrace is how many "not found" answers are tolerated right
// after submission, before the job has been seen alive, to cover the window
// where the service has not yet registered the job.
const DefaultNotFoundGrace = 1

type options struct {
	id            string
	params        Params
	clock         Clock
	notFoundGrace int
}

type Option func(*options)

// WithID submits under a caller-chosen remote id.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func WithParams(p Params) Option {
	return func(o *options) { o.params = p }
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithNotFoundGrace sets how many unconfirmed "not found" answers Status
// absorbs before trusting them. Zero trusts the first one.
func WithNotFoundGrace(n int) Option {
	return func(o *options) { o.notFoundGrace = n }
}

// Task is a handle on one remote asynchronous job. It is not safe for
// concurrent use; independent tasks may share a Transport.
type Task[I, R any] struct {
	transport Transport
	kind      Kind[I, R]
	opts      options

	id         string
	items      []I
	state      State
	lastStatus json.RawMessage
	result     R
	hasResult  bool

	// confirmed is set once the service has reported the job in any state
	// other than "not found".
	confirmed  bool
	graceSpent int
}

func buildOptions(opts []Option) options {
	o := options{clock: SystemClock, notFoundGrace: DefaultNotFoundGrace}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = SystemClock
	}
	if o.notFoundGrace < 0 {
		o.notFoundGrace = 0
	}
	return o
}

// New creates an unsubmitted task.
func New[I, R any](transport Transport, kind Kind[I, R], opts ...Option) *Task[I, R] {
	return &Task[I, R]{
		transport: transport,
		kind:      kind,
		opts:      buildOptions(opts),
		state:     StateUnsubmitted,
	}
}

// Attach returns a handle on a job submitted elsewhere, for example by an
// earlier process. The job is assumed to have existed, so "not found" is
// trusted immediately.
func Attach[I, R any](transport Transport, kind Kind[I, R], id string, opts ...Option) *Task[I, R] {
	t := New(transport, kind, opts...)
	t.id = id
	t.state = StateSubmitted
	t.confirmed = true
	return t
}

func (t *Task[I, R]) ID() string { return t.id }

func (t *Task[I, R]) Kind() string { return t.kind.Name() }

func (t *Task[I, R]) State() State { return t.state }

// LastStatus is the most recent raw status payload, kept for diagnostics.
func (t *Task[I, R]) LastStatus() json.RawMessage { return t.lastStatus }

// Items returns a copy of the items waiting to be submitted.
func (t *Task[I, R]) Items() []I {
	out := make([]I, len(t.items))
	copy(out, t.items)
	return out
}

func (t *Task[I, R]) Ref() JobRef {
	id := t.id
	if id == "" {
		id = t.opts.id
	}
	return JobRef{Kind: t.kind.Name(), ID: id}
}

func (t *Task[I, R]) String() string {
	return fmt.Sprintf("<%s task %s %s>", t.kind.Name(), t.id, t.state)
}

// Push queues items for submission, preserving order.
func (t *Task[I, R]) Push(items ...I) error {
	if t.state != StateUnsubmitted {
		return &StateError{Op: "push", State: t.state}
	}
	t.items = append(t.items, items...)
	return nil
}

// Submit sends every pushed item in one submission and starts the remote
// analysis. On failure the task stays unsubmitted with its items intact.
func (t *Task[I, R]) Submit(ctx context.Context) error {
	if t.state != StateUnsubmitted {
		return &StateError{Op: "submit", State: t.state}
	}
	if len(t.items) == 0 {
		return &StateError{Op: "submit", State: t.state, Reason: "no items pushed"}
	}
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	encoded, err := t.kind.EncodeItems(t.items)
	if err != nil {
		return fmt.Errorf("failed to encode %s items: %w", t.kind.Name(), err)
	}

	id, err := t.transport.SubmitJob(ctx, SubmitRequest{
		Kind:   t.kind.Name(),
		ID:     t.opts.id,
		Items:  encoded,
		Params: t.opts.params,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cancelled(ctxErr)
		}
		return classify("submit", err)
	}

	logger.Debug("Submitted %d items as %s task %s", len(t.items), t.kind.Name(), id)
	t.id = id
	t.items = nil
	t.state = StateSubmitted
	return nil
}

// Status issues one status query and returns the resulting state. A
// "not found" job is reported as StateNotFound, not as an error. On a
// transport failure the state is left as it was.
func (t *Task[I, R]) Status(ctx context.Context) (State, error) {
	if t.state == StateUnsubmitted || t.state == StateCleared {
		return t.state, &StateError{Op: "status", State: t.state}
	}

	report, err := t.transport.QueryStatus(ctx, t.Ref())
	if err != nil {
		return t.state, classify("status", err)
	}
	t.lastStatus = report.Raw

	next, known := report.Code.state()
	if !known {
		logger.Warn("Unrecognized status %q for %s task %s, treating as running", report.Code, t.kind.Name(), t.id)
	}

	if t.state.IsTerminal() {
		if next != t.state {
			logger.Debug("Ignoring %s for %s task %s already %s", report.Code, t.kind.Name(), t.id, t.state)
		}
		return t.state, nil
	}

	if next == StateNotFound && !t.confirmed && t.graceSpent < t.opts.notFoundGrace {
		t.graceSpent++
		logger.Debug("%s task %s not registered yet (grace %d/%d)", t.kind.Name(), t.id, t.graceSpent, t.opts.notFoundGrace)
		return t.state, nil
	}
	if next != StateNotFound {
		t.confirmed = true
	}

	logger.Debug("Status of %s task %s: %s", t.kind.Name(), t.id, report.Code)
	t.state = next
	return t.state, nil
}

// Result fetches the output of a finished task. The first successful fetch
// is cached and returned by later calls without contacting the service.
func (t *Task[I, R]) Result(ctx context.Context) (R, error) {
	if t.hasResult {
		return t.result, nil
	}

	var zero R
	if t.state != StateFinished {
		return zero, &TaskError{Job: t.Ref(), State: t.state, LastStatus: t.lastStatus}
	}

	raw, err := t.transport.FetchResult(ctx, t.Ref())
	if err != nil {
		return zero, classify("result", err)
	}

	result, err := t.kind.DecodeResult(raw)
	if err != nil {
		return zero, &TransportError{Op: "result", Err: fmt.Errorf("malformed %s result: %w", t.kind.Name(), err)}
	}

	t.result = result
	t.hasResult = true
	return result, nil
}

// Clear releases the remote job. A job the service no longer knows about
// counts as cleared, and clearing twice is a no-op.
func (t *Task[I, R]) Clear(ctx context.Context) error {
	switch t.state {
	case StateUnsubmitted:
		return &StateError{Op: "clear", State: t.state}
	case StateCleared:
		return nil
	}

	if err := t.transport.DeleteJob(ctx, t.Ref()); err != nil {
		err = classify("clear", err)
		var remoteErr *RemoteError
		if !errors.As(err, &remoteErr) || !remoteErr.NotFound() {
			return err
		}
		logger.Debug("%s task %s already gone on clear", t.kind.Name(), t.id)
	}

	var zero R
	t.state = StateCleared
	t.result = zero
	t.hasResult = false
	t.lastStatus = nil
	return nil
}
