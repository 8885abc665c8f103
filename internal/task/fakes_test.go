package task_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kelsos/bosonnlp-go/internal/task"
)

// wordsKind submits plain strings and reads back a list of strings.
type wordsKind struct{}

func (wordsKind) Name() string { return "cluster" }

func (wordsKind) EncodeItems(items []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (wordsKind) DecodeResult(raw json.RawMessage) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// step is one scripted answer to a status query.
type step struct {
	code task.StatusCode
	err  error
}

func status(code task.StatusCode) step { return step{code: code} }

func failing() step {
	return step{err: &task.TransportError{Op: "status", Err: errors.New("connection refused")}}
}

// fakeTransport answers from a script; the last status step repeats.
type fakeTransport struct {
	mu sync.Mutex

	nextID    string
	submitErr error
	submitted []task.SubmitRequest

	steps []step
	polls int

	result    json.RawMessage
	resultErr error
	fetches   int

	deleteErr error
	deletes   int
}

func (f *fakeTransport) SubmitJob(ctx context.Context, req task.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	if req.ID != "" {
		return req.ID, nil
	}
	if f.nextID == "" {
		return "job-1", nil
	}
	return f.nextID, nil
}

func (f *fakeTransport) QueryStatus(ctx context.Context, job task.JobRef) (task.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return task.StatusReport{}, errors.New("no status scripted")
	}
	idx := f.polls
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	f.polls++
	s := f.steps[idx]
	if s.err != nil {
		return task.StatusReport{}, s.err
	}
	raw := json.RawMessage(fmt.Sprintf(`{"status":%q}`, s.code))
	return task.StatusReport{Code: s.code, Raw: raw}, nil
}

func (f *fakeTransport) FetchResult(ctx context.Context, job task.JobRef) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return f.result, nil
}

func (f *fakeTransport) DeleteJob(ctx context.Context, job task.JobRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeTransport) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type wordsTask = task.Task[string, []string]

func newTask(tr task.Transport, clk task.Clock, opts ...task.Option) *wordsTask {
	opts = append([]task.Option{task.WithClock(clk)}, opts...)
	return task.New[string, []string](tr, wordsKind{}, opts...)
}

func submitted(t *testing.T, tr *fakeTransport, clk task.Clock, opts ...task.Option) *wordsTask {
	t.Helper()
	tk := newTask(tr, clk, opts...)
	if err := tk.Push("a", "b"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := tk.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return tk
}
