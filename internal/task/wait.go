package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelsos/bosonnlp-go/internal/logger"
)

const (
	DefaultPollInterval         = time.Second
	DefaultWaitTimeout          = 30 * time.Minute
	DefaultMaxTransportFailures = 3

	// the interval doubles after every backoffEvery polls when backoff is on
	backoffEvery = 3
)

type WaitOptions struct {
	PollInterval time.Duration
	// MaxPollInterval enables backoff: when larger than PollInterval the
	// interval doubles every third poll up to this ceiling.
	MaxPollInterval time.Duration
	Timeout         time.Duration
	// MaxTransportFailures is the number of consecutive failed polls that
	// ends the wait with the last transport error.
	MaxTransportFailures int
	// OnPoll, when set, is called after every poll.
	OnPoll func(PollEvent)
}

type PollEvent struct {
	Job     JobRef
	Attempt int
	State   State
	Err     error
	Elapsed time.Duration
	Timeout time.Duration
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultWaitTimeout
	}
	if o.MaxTransportFailures <= 0 {
		o.MaxTransportFailures = DefaultMaxTransportFailures
	}
	return o
}

// WaitUntilComplete polls Status until the task reaches a terminal state,
// the timeout elapses, or ctx is done.
//
// Finished and Failed are returned without error; NotFound is returned with
// a *TaskError matching ErrTaskNotFound. Individual transport failures are
// retried until MaxTransportFailures happen in a row. Remote errors end the
// wait immediately. Cancellation yields an error matching ErrCancelled and
// leaves the task pollable.
func (t *Task[I, R]) WaitUntilComplete(ctx context.Context, opts WaitOptions) (State, error) {
	if t.state == StateUnsubmitted || t.state == StateCleared {
		return t.state, &StateError{Op: "wait", State: t.state}
	}

	opts = opts.withDefaults()
	clock := t.opts.clock
	start := clock.Now()
	interval := opts.PollInterval
	failures := 0

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return t.state, cancelled(err)
		}

		state, err := t.Status(ctx)
		elapsed := clock.Now().Sub(start)
		if opts.OnPoll != nil {
			opts.OnPoll(PollEvent{
				Job:     t.Ref(),
				Attempt: attempt,
				State:   state,
				Err:     err,
				Elapsed: elapsed,
				Timeout: opts.Timeout,
			})
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return t.state, cancelled(ctxErr)
			}
			if !errors.Is(err, ErrTransport) {
				return t.state, err
			}
			failures++
			logger.Warn("Poll %d of %s failed (%d/%d consecutive): %v", attempt, t.Ref(), failures, opts.MaxTransportFailures, err)
			if elapsed < opts.Timeout && failures >= opts.MaxTransportFailures {
				return t.state, fmt.Errorf("giving up on %s after %d consecutive poll failures: %w", t.Ref(), failures, err)
			}
		} else {
			failures = 0
			switch state {
			case StateFinished, StateFailed:
				return state, nil
			case StateNotFound:
				return state, &TaskError{Job: t.Ref(), State: state, LastStatus: t.lastStatus}
			}
		}

		if elapsed >= opts.Timeout {
			return t.state, &TimeoutError{Job: t.Ref(), Timeout: opts.Timeout, State: t.state}
		}

		wait := interval
		if remaining := opts.Timeout - elapsed; wait > remaining {
			wait = remaining
		}
		if err := clock.Sleep(ctx, wait); err != nil {
			return t.state, cancelled(err)
		}

		if opts.MaxPollInterval > interval && attempt%backoffEvery == 0 {
			interval *= 2
			if interval > opts.MaxPollInterval {
				interval = opts.MaxPollInterval
			}
		}
	}
}
