package tui_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kelsos/bosonnlp-go/internal/task"
	"github.com/kelsos/bosonnlp-go/internal/tui"
)

func update(t *testing.T, m tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next
}

func TestModel_TracksTaskProgress(t *testing.T) {
	t.Parallel()
	var m tea.Model = tui.NewModel()
	m = update(t, m, tui.TasksLoaded{Labels: []string{"news.txt", "reviews.txt"}})
	m = update(t, m, tui.TaskUpdate{
		Label:   "news.txt",
		Job:     task.JobRef{Kind: "cluster", ID: "job-7"},
		State:   task.StateRunning,
		Attempt: 3,
		Elapsed: time.Second,
		Timeout: time.Minute,
	})

	view := m.View()
	for _, want := range []string{"news.txt", "reviews.txt", "running", "cluster/job-7", "Tasks: 2", "Active: 1"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q\n%s", want, view)
		}
	}
}

func TestModel_CountsCompletions(t *testing.T) {
	t.Parallel()
	var m tea.Model = tui.NewModel()
	m = update(t, m, tui.TasksLoaded{Labels: []string{"a", "b"}})
	m = update(t, m, tui.TaskUpdate{Label: "a", State: task.StateFinished, Done: true})
	m = update(t, m, tui.TaskUpdate{Label: "b", State: task.StateFailed, Err: errors.New("boom"), Done: true})
	// late updates after completion are ignored
	m = update(t, m, tui.TaskUpdate{Label: "b", State: task.StateRunning})

	view := m.View()
	if !strings.Contains(view, "Done: 1") || !strings.Contains(view, "Errors: 1") {
		t.Errorf("unexpected summary\n%s", view)
	}
	if !strings.Contains(view, "boom") {
		t.Errorf("expected error to be shown\n%s", view)
	}
	if strings.Contains(view, "running") {
		t.Errorf("expected late update to be ignored\n%s", view)
	}
}

func TestModel_KeepsRecentLogs(t *testing.T) {
	t.Parallel()
	var m tea.Model = tui.NewModel()
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 60})
	for i := 0; i < 15; i++ {
		m = update(t, m, tui.LogMessage{Message: fmt.Sprintf("log line %02d", i)})
	}

	view := m.View()
	if strings.Contains(view, "log line 04") {
		t.Errorf("expected old logs to be dropped\n%s", view)
	}
	if !strings.Contains(view, "log line 14") {
		t.Errorf("expected newest log to be shown\n%s", view)
	}
}

func TestModel_QuitKey(t *testing.T) {
	t.Parallel()
	m := tui.NewModel()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg")
	}
	if next.View() != "Shutting down...\n" {
		t.Errorf("unexpected view after quit: %q", next.View())
	}
}

func TestTaskMonitor_ClosesWhenContextIsCancelled(t *testing.T) {
	t.Parallel()
	monitor := tui.NewTaskMonitor(
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- monitor.Run(ctx, func(ctx context.Context) error {
			monitor.SetTasks([]string{"news.txt"})
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	cancel()
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected work to see cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("monitor kept running after cancellation")
	}
}
