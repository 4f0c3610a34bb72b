package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Layout constants
const (
	taskPanelWidth = 35 // Fixed width for task panel
	minHeight      = 10
)

// Color palette
var (
	primaryColor   = lipgloss.Color("205") // Pink
	secondaryColor = lipgloss.Color("86")  // Cyan
	mutedColor     = lipgloss.Color("241") // Gray
	successColor   = lipgloss.Color("78")  // Green
	warningColor   = lipgloss.Color("214") // Orange
	errorColor     = lipgloss.Color("196") // Red
)

// Panel styles
var (
	// Header styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Status bar styles
	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	statusItemStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(mutedColor)

	// Panel styles
	taskPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor)

	logPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			Padding(0, 1)

	// Footer styles
	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	descStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// Status indicators
	runningStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	stoppingStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)
)

// renderHeader renders the header with the task file name and run state.
func (m Model) renderHeader() string {
	left := titleStyle.Render(fmt.Sprintf("⚡ anton: %s", m.taskFile))

	var status string
	switch {
	case m.running && m.stopRequested:
		status = stoppingStyle.Render("⏸ STOPPING")
	case m.running:
		status = runningStyle.Render("● RUNNING")
	case m.errText != "":
		status = failedStyle.Render("✗ FAILED")
	case m.stoppedRun:
		status = stoppingStyle.Render("■ STOPPED")
	default:
		status = runningStyle.Render("✔ DONE")
	}

	// Calculate padding to right-align status
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(status) - 2
	if padding < 0 {
		padding = 0
	}

	return headerStyle.Width(m.width).Render(
		left + lipgloss.NewStyle().Width(padding).Render("") + status,
	)
}

// renderStatusBar renders counts, the active task, timing, and the
// progress bar.
func (m Model) renderStatusBar() string {
	stage := fmt.Sprintf("%s %s",
		statusLabelStyle.Render("Stage:"),
		statusItemStyle.Render(m.stageLabel()),
	)

	counts := fmt.Sprintf("%s %s",
		statusLabelStyle.Render("Done:"),
		statusItemStyle.Render(fmt.Sprintf("%d/%d", m.done+m.skipped+m.failed, m.total)),
	)

	task := fmt.Sprintf("%s %s",
		statusLabelStyle.Render("Task:"),
		statusItemStyle.Render(truncate(m.task, 30)),
	)

	attempt := fmt.Sprintf("%s %s",
		statusLabelStyle.Render("Attempt:"),
		statusItemStyle.Render(fmt.Sprintf("%d", m.attempt)),
	)

	duration := fmt.Sprintf("%s %s",
		statusLabelStyle.Render("Time:"),
		statusItemStyle.Render(formatDuration(m.runDuration())),
	)

	parts := []string{stage, " │ ", counts, " │ ", task, " │ ", attempt, " │ ", duration}
	if m.eta > 0 {
		eta := fmt.Sprintf("%s %s",
			statusLabelStyle.Render("ETA:"),
			statusItemStyle.Render(formatDuration(m.eta)),
		)
		parts = append(parts, " │ ", eta)
	}

	statsLine := lipgloss.JoinHorizontal(lipgloss.Center, parts...)

	var progressLine string
	if m.total > 0 {
		percent := float64(m.done+m.skipped+m.failed) / float64(m.total)
		progressLine = m.progress.ViewAs(percent)
	}

	return statusBarStyle.Width(m.width).Render(
		lipgloss.JoinVertical(lipgloss.Left, statsLine, progressLine),
	)
}

func (m Model) stageLabel() string {
	if m.stage == "" {
		return "Starting"
	}
	return m.stage
}

// runDuration prefers the engine's elapsed time once a heartbeat has
// reported one; before that it counts from model creation.
func (m Model) runDuration() time.Duration {
	if m.elapsed > 0 {
		return m.elapsed
	}
	return time.Since(m.startTime)
}

// formatDuration formats a duration as MM:SS or HH:MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// renderMainContent renders the main two-panel layout.
func (m Model) renderMainContent() string {
	availableHeight := m.height - 7 // Header + status (2 lines) + footer + borders
	if availableHeight < minHeight {
		availableHeight = minHeight
	}

	logWidth := m.width - taskPanelWidth - 4 // Account for borders
	if logWidth < 20 {
		logWidth = 20
	}

	taskPanel := m.renderTaskPanel(availableHeight)
	logPanel := m.renderLogPanel(logWidth, availableHeight)

	return lipgloss.JoinHorizontal(lipgloss.Top, taskPanel, logPanel)
}

// renderTaskPanel renders the task list panel.
func (m Model) renderTaskPanel(height int) string {
	title := panelTitleStyle.Render("Tasks")

	// Resize task list to fit
	m.tasks.SetSize(taskPanelWidth-4, height-4)

	content := m.tasks.View()

	return taskPanelStyle.
		Width(taskPanelWidth).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

// renderLogPanel renders the run log panel.
func (m Model) renderLogPanel(width, height int) string {
	title := panelTitleStyle.Render("Run Log")

	m.viewport.Width = width - 4
	m.viewport.Height = height - 4

	content := m.viewport.View()

	return logPanelStyle.
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

// renderFooter renders the footer with keybindings.
func (m Model) renderFooter() string {
	keys := []struct {
		key  string
		desc string
	}{
		{"q", "stop"},
		{"q q", "cancel turn"},
		{"j/k", "scroll"},
		{"g/G", "top/bottom"},
	}
	if !m.running {
		keys = []struct {
			key  string
			desc string
		}{
			{"q", "quit"},
			{"j/k", "scroll"},
			{"g/G", "top/bottom"},
		}
	}

	var items []string
	for _, k := range keys {
		items = append(items,
			keyStyle.Render(k.key)+descStyle.Render(":"+k.desc),
		)
	}

	return footerStyle.Width(m.width).Render(
		lipgloss.JoinHorizontal(lipgloss.Center, join(items, "  ")...),
	)
}

// Helper functions

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func join(items []string, sep string) []string {
	if len(items) == 0 {
		return nil
	}
	result := make([]string, 0, len(items)*2-1)
	for i, item := range items {
		if i > 0 {
			result = append(result, sep)
		}
		result = append(result, item)
	}
	return result
}
