// Package tui renders the interactive run dashboard. The model is
// fed exclusively by progress events; it never reaches into the
// engine beyond the Stopper it is handed.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/list"
	prog "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/visorcraft/anton/internal/progress"
)

// Stopper requests a graceful stop of the active run. The first call
// finishes the current turn; a second call cancels it.
type Stopper interface {
	Stop()
}

// Config holds dashboard configuration.
type Config struct {
	TaskFile string
	Tasks    []string // pending task texts, in document order
	Events   <-chan progress.Event
	Stopper  Stopper
}

// Model is the main TUI model for anton.
type Model struct {
	taskFile string

	// Run state
	stage         string
	running       bool
	stopRequested bool
	stoppedRun    bool
	errText       string
	quitting      bool

	// Progress
	task    string
	attempt int
	done    int
	skipped int
	failed  int
	total   int
	elapsed time.Duration
	eta     time.Duration

	// Embedded bubbles components
	viewport viewport.Model
	tasks    list.Model
	progress prog.Model
	output   string

	// Event stream
	events <-chan progress.Event
	stop   Stopper

	// Dimensions
	width  int
	height int

	startTime time.Time
}

// New creates a new dashboard model seeded with the pending tasks.
func New(cfg Config) Model {
	vp := viewport.New(80, 20)
	vp.SetContent("Waiting for run events...")

	delegate := list.NewDefaultDelegate()
	taskList := list.New(nil, delegate, taskPanelWidth-4, 10)
	taskList.SetShowTitle(false)
	taskList.SetShowStatusBar(false)
	taskList.SetFilteringEnabled(false)
	taskList.SetShowHelp(false)

	m := Model{
		taskFile:  cfg.TaskFile,
		viewport:  vp,
		tasks:     taskList,
		progress:  prog.New(prog.WithDefaultGradient()),
		events:    cfg.Events,
		stop:      cfg.Stopper,
		running:   true,
		total:     len(cfg.Tasks),
		startTime: time.Now(),
	}
	m.setTasks(cfg.Tasks)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return waitForEvent(m.events)
}

// Message types for dashboard updates, one per progress event.
type (
	// StageMsg announces a run phase change.
	StageMsg progress.StageEvent

	// TaskMsg announces a task lifecycle transition.
	TaskMsg progress.TaskEvent

	// HeartbeatMsg carries the periodic progress summary.
	HeartbeatMsg progress.HeartbeatEvent

	// LoopMsg reports a tool-call-loop condition.
	LoopMsg progress.LoopEvent

	// DoneMsg is the final run summary.
	DoneMsg progress.DoneEvent

	// logMsg is an event with no dedicated handling; it is only
	// appended to the run log.
	logMsg string

	// eventsClosedMsg signals the event stream has closed.
	eventsClosedMsg struct{}
)

// waitForEvent blocks on the event stream and converts the next event
// into its message type. The returned command is re-armed after every
// stream message so the channel always has exactly one reader.
func waitForEvent(ch <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		switch ev := ev.(type) {
		case progress.StageEvent:
			return StageMsg(ev)
		case progress.TaskEvent:
			return TaskMsg(ev)
		case progress.HeartbeatEvent:
			return HeartbeatMsg(ev)
		case progress.LoopEvent:
			return LoopMsg(ev)
		case progress.DoneEvent:
			return DoneMsg(ev)
		default:
			return logMsg(ev.String())
		}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.running {
				m.quitting = true
				return m, tea.Quit
			}
			if m.stop != nil {
				m.stop.Stop()
			}
			if m.stopRequested {
				m.appendLog("[STOP] cancelling the active turn")
			} else {
				m.stopRequested = true
				m.appendLog("[STOP] finishing the current turn, then stopping")
			}
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		availableHeight := msg.Height - 7 // Header + status (2 lines) + footer
		if availableHeight < minHeight {
			availableHeight = minHeight
		}

		outputWidth := msg.Width - taskPanelWidth - 4
		if outputWidth < 20 {
			outputWidth = 20
		}

		m.viewport.Width = outputWidth - 4
		m.viewport.Height = availableHeight - 4
		m.tasks.SetSize(taskPanelWidth-4, availableHeight-4)
		m.progress.Width = msg.Width - 20

	case StageMsg:
		ev := progress.StageEvent(msg)
		m.stage = ev.Stage.Label()
		m.appendLog(ev.String())

	case TaskMsg:
		ev := progress.TaskEvent(msg)
		m.applyTask(ev)
		m.appendLog(ev.String())

	case HeartbeatMsg:
		ev := progress.HeartbeatEvent(msg)
		m.task = ev.Task
		m.attempt = ev.Attempt
		m.elapsed = ev.Elapsed
		m.eta = ev.ETA

	case LoopMsg:
		ev := progress.LoopEvent(msg)
		m.appendLog(ev.String())

	case DoneMsg:
		ev := progress.DoneEvent(msg)
		m.running = false
		m.stoppedRun = ev.Stopped
		m.errText = ev.Err
		if ev.Elapsed > 0 {
			m.elapsed = ev.Elapsed
		}
		m.eta = 0
		m.appendLog(ev.String())
		if m.stopRequested {
			m.quitting = true
			return m, tea.Quit
		}
		m.appendLog("press q to exit")

	case logMsg:
		m.appendLog(string(msg))

	case eventsClosedMsg:
		if m.running {
			m.running = false
			m.appendLog("event stream closed; press q to exit")
		}
	}

	// Re-arm the stream reader only for messages that came from it.
	switch msg.(type) {
	case StageMsg, TaskMsg, HeartbeatMsg, LoopMsg, DoneMsg, logMsg:
		cmds = append(cmds, waitForEvent(m.events))
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// appendLog adds a line to the run log and keeps it scrolled to the
// bottom.
func (m *Model) appendLog(line string) {
	if m.output == "" {
		m.output = line
	} else {
		m.output += "\n" + line
	}
	m.viewport.SetContent(m.output)
	m.viewport.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderStatusBar(),
		m.renderMainContent(),
		m.renderFooter(),
	)
}

// Run drives the dashboard until the run ends or the user quits.
func Run(cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
