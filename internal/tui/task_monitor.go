package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kelsos/bosonnlp-go/internal/task"
)

// TaskMonitor feeds task progress into a bubbletea program. Its methods are
// safe to call from the goroutines running the tasks.
type TaskMonitor struct {
	program *tea.Program
}

func NewTaskMonitor(opts ...tea.ProgramOption) *TaskMonitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TaskMonitor{
		program: tea.NewProgram(NewModel(), opts...),
	}
}

// Stop asks the program to exit.
func (tm *TaskMonitor) Stop() {
	if tm.program != nil {
		tm.program.Quit()
	}
}

func (tm *TaskMonitor) SetTasks(labels []string) {
	if tm.program != nil {
		tm.program.Send(TasksLoaded{Labels: labels})
	}
}

func (tm *TaskMonitor) AddLog(message string) {
	if tm.program != nil {
		tm.program.Send(LogMessage{Message: message})
	}
}

// Submitted marks the task as accepted by the service.
func (tm *TaskMonitor) Submitted(label string, job task.JobRef) {
	if tm.program != nil {
		tm.program.Send(TaskUpdate{Label: label, Job: job, State: task.StateSubmitted})
	}
	tm.AddLog(fmt.Sprintf("Submitted %s as %s", label, job))
}

// Observer returns a poll hook for WaitUntilComplete that reports under label.
func (tm *TaskMonitor) Observer(label string) func(task.PollEvent) {
	return func(ev task.PollEvent) {
		if tm.program == nil {
			return
		}
		tm.program.Send(TaskUpdate{
			Label:   label,
			Job:     ev.Job,
			State:   ev.State,
			Attempt: ev.Attempt,
			Elapsed: ev.Elapsed,
			Timeout: ev.Timeout,
			Err:     ev.Err,
		})
	}
}

// Complete marks the end of the task's run.
func (tm *TaskMonitor) Complete(label string, err error) {
	update := TaskUpdate{Label: label, Err: err, Done: true}
	if err == nil {
		update.State = task.StateFinished
	}
	if tm.program != nil {
		tm.program.Send(update)
	}
	if err != nil {
		tm.AddLog(fmt.Sprintf("%s failed: %v", label, err))
	} else {
		tm.AddLog(fmt.Sprintf("%s completed", label))
	}
}

// Run executes work in the background and shows the monitor until the user
// quits. The monitor stays open after work returns so results can be read;
// quitting early cancels the context passed to work, and cancelling ctx
// closes the monitor.
func (tm *TaskMonitor) Run(ctx context.Context, work func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		tm.Stop()
	}()

	var workErr error
	done := make(chan struct{})

	go func() {
		defer close(done)
		workErr = work(ctx)
		if workErr != nil {
			tm.AddLog(fmt.Sprintf("Fatal error: %v", workErr))
		} else {
			tm.AddLog("All tasks finished, press 'q' to exit")
		}
	}()

	_, err := tm.program.Run()
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return workErr
}
