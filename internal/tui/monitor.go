package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kelsos/bosonnlp-go/internal/task"
)

const maxLogs = 10

type TaskStatus struct {
	Label         string
	Job           task.JobRef
	State         task.State
	Attempt       int
	Elapsed       time.Duration
	Timeout       time.Duration
	Error         error
	Done          bool
	StartTime     time.Time
	CompletedTime time.Time
}

type Model struct {
	labels       []string
	taskStatuses map[string]*TaskStatus
	logs         []string
	spinner      spinner.Model
	progress     progress.Model
	width        int
	height       int
	quit         bool
	errorCount   int
	successCount int
}

// TasksLoaded lists the tasks to display, in order.
type TasksLoaded struct {
	Labels []string
}

// TaskUpdate reports progress of one task. Done marks the end of its
// one-shot run, successful when Err is nil; a Done update with no State
// keeps the last polled one.
type TaskUpdate struct {
	Label   string
	Job     task.JobRef
	State   task.State
	Attempt int
	Elapsed time.Duration
	Timeout time.Duration
	Err     error
	Done    bool
}

type LogMessage struct {
	Message string
}

func NewModel() Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pr := progress.New(progress.WithDefaultGradient())

	return Model{
		labels:       []string{},
		taskStatuses: make(map[string]*TaskStatus),
		logs:         []string{},
		spinner:      sp,
		progress:     pr,
		width:        80,
		height:       24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleKeyMsg(msg) {
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m = m.handleWindowSizeMsg(msg)

	case TasksLoaded:
		m = m.handleTasksLoaded(msg)

	case TaskUpdate:
		m = m.handleTaskUpdate(msg)

	case LogMessage:
		m = m.handleLogMessage(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func (m Model) handleWindowSizeMsg(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.progress.Width = msg.Width - 50
	if m.progress.Width < 10 {
		m.progress.Width = 10
	}
	return m
}

func (m Model) handleTasksLoaded(msg TasksLoaded) Model {
	for _, label := range msg.Labels {
		if _, exists := m.taskStatuses[label]; exists {
			continue
		}
		m.labels = append(m.labels, label)
		m.taskStatuses[label] = &TaskStatus{Label: label, State: task.StateUnsubmitted}
	}
	return m
}

func (m Model) handleTaskUpdate(msg TaskUpdate) Model {
	status, exists := m.taskStatuses[msg.Label]
	if !exists {
		status = &TaskStatus{Label: msg.Label}
		m.labels = append(m.labels, msg.Label)
		m.taskStatuses[msg.Label] = status
	}
	if status.Done {
		return m
	}

	if msg.Done {
		status.Done = true
		status.CompletedTime = time.Now()
		status.Error = msg.Err
		if msg.State != task.StateUnsubmitted {
			status.State = msg.State
		}
		if msg.Err != nil {
			m.errorCount++
		} else {
			m.successCount++
		}
		return m
	}

	if msg.Job.ID != "" {
		status.Job = msg.Job
	}
	status.State = msg.State
	status.Attempt = msg.Attempt
	status.Elapsed = msg.Elapsed
	status.Timeout = msg.Timeout
	status.Error = msg.Err

	if status.StartTime.IsZero() && msg.State != task.StateUnsubmitted {
		status.StartTime = time.Now()
	}
	return m
}

func (m Model) handleLogMessage(msg LogMessage) Model {
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s",
		time.Now().Format("15:04:05"), msg.Message))
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
	return m
}

func (m Model) activeCount() int {
	active := 0
	for _, status := range m.taskStatuses {
		if !status.Done && status.State != task.StateUnsubmitted {
			active++
		}
	}
	return active
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("BosonNLP Task Monitor"))
	s.WriteString("\n\n")

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	summary := fmt.Sprintf("Tasks: %d | Done: %d | Errors: %d | Active: %d",
		len(m.labels), m.successCount, m.errorCount, m.activeCount())
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n\n")

	taskSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 2)

	var taskSection strings.Builder
	taskSection.WriteString("Tasks\n")
	taskSection.WriteString(strings.Repeat("─", 60) + "\n")

	for _, label := range m.labels {
		status, exists := m.taskStatuses[label]
		if !exists {
			continue
		}

		indicator := stateIcon(status)
		if !status.Done && status.State != task.StateUnsubmitted {
			indicator = m.spinner.View()
		}

		line := fmt.Sprintf("%s %-20s %-11s poll %-3d",
			indicator,
			truncate(label, 20),
			status.State,
			status.Attempt)

		if !status.Done && status.Timeout > 0 {
			line += " " + m.progress.ViewAs(progressFraction(status.Elapsed, status.Timeout))
		}

		if status.Error != nil {
			errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
			line += " " + errorStyle.Render(fmt.Sprintf("Error: %v", status.Error))
		} else if status.Job.ID != "" {
			jobStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
			line += " " + jobStyle.Render(status.Job.String())
		}

		stateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(stateColor(status)))
		taskSection.WriteString(stateStyle.Render(line) + "\n")
	}

	s.WriteString(taskSectionStyle.Render(taskSection.String()))
	s.WriteString("\n\n")

	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("Recent Logs\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	footer := "Press 'q' to quit | Logs: logs/bosonnlp_*.log"
	s.WriteString(footerStyle.Render(footer))

	return s.String()
}

func progressFraction(elapsed, timeout time.Duration) float64 {
	if timeout <= 0 {
		return 0
	}
	f := float64(elapsed) / float64(timeout)
	if f > 1 {
		return 1
	}
	return f
}

func stateIcon(status *TaskStatus) string {
	if status.Done && status.Error != nil {
		return "✗"
	}
	switch status.State {
	case task.StateUnsubmitted:
		return "⏸"
	case task.StateFinished, task.StateCleared:
		return "✓"
	case task.StateFailed, task.StateNotFound:
		return "✗"
	default:
		return "…"
	}
}

func stateColor(status *TaskStatus) string {
	switch {
	case status.Error != nil || status.State == task.StateFailed || status.State == task.StateNotFound:
		return "196"
	case status.State == task.StateUnsubmitted:
		return "244"
	case status.Done:
		return "82"
	default:
		return "39"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
