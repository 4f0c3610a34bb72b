package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/visorcraft/anton/internal/progress"
)

// taskState is a task's display state in the side panel.
type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskDone
	taskSkipped
	taskFailed
)

// taskItem implements list.Item for task display.
type taskItem struct {
	text   string
	state  taskState
	reason string
}

// Status icons
var (
	iconPending   = lipgloss.NewStyle().Foreground(mutedColor).Render("○")
	iconRunning   = lipgloss.NewStyle().Foreground(warningColor).Render("◐")
	iconDone      = lipgloss.NewStyle().Foreground(successColor).Render("●")
	iconSkipped   = lipgloss.NewStyle().Foreground(warningColor).Render("⊘")
	iconFailed    = lipgloss.NewStyle().Foreground(errorColor).Render("✗")
	currentMarker = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Render("▶")
)

func (t taskItem) Title() string {
	icon := iconPending
	prefix := "  "
	switch t.state {
	case taskRunning:
		icon = iconRunning
		prefix = currentMarker + " "
	case taskDone:
		icon = iconDone
	case taskSkipped:
		icon = iconSkipped
	case taskFailed:
		icon = iconFailed
	}
	return fmt.Sprintf("%s%s %s", prefix, icon, t.text)
}

func (t taskItem) Description() string {
	if t.reason == "" {
		return ""
	}
	return fmt.Sprintf("  %s", t.reason)
}

func (t taskItem) FilterValue() string {
	return t.text
}

// setTasks seeds the task list with pending rows.
func (m *Model) setTasks(texts []string) {
	items := make([]list.Item, len(texts))
	for i, text := range texts {
		items[i] = taskItem{text: text}
	}
	m.tasks.SetItems(items)
}

// applyTask folds a task lifecycle event into the panel and the run
// counters. Tasks the seed did not know about, such as subtasks from
// a decomposition, are appended as they start.
func (m *Model) applyTask(ev progress.TaskEvent) {
	state := taskPending
	switch ev.Action {
	case progress.TaskStart:
		state = taskRunning
		m.task = ev.Text
	case progress.TaskDone:
		state = taskDone
		m.done++
	case progress.TaskSkipped:
		state = taskSkipped
		m.skipped++
	case progress.TaskFailed:
		state = taskFailed
		m.failed++
	case progress.TaskDecomposed:
		// The parent stays in flight while its subtasks run.
		state = taskRunning
	}

	items := m.tasks.Items()
	for i, item := range items {
		ti, ok := item.(taskItem)
		if !ok || ti.text != ev.Text {
			continue
		}
		ti.state = state
		ti.reason = ev.Reason
		items[i] = ti
		m.tasks.SetItems(items)
		return
	}

	items = append(items, taskItem{text: ev.Text, state: state, reason: ev.Reason})
	m.tasks.SetItems(items)
	m.total = len(items)
}
