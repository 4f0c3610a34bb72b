package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/visorcraft/anton/internal/progress"
)

type fakeStopper struct {
	stops int
}

func (f *fakeStopper) Stop() { f.stops++ }

func testModel(stop Stopper) Model {
	return New(Config{
		TaskFile: "tasks.md",
		Tasks:    []string{"task one", "task two", "task three"},
		Events:   make(chan progress.Event),
		Stopper:  stop,
	})
}

func TestNew(t *testing.T) {
	m := testModel(nil)

	if m.taskFile != "tasks.md" {
		t.Errorf("expected taskFile 'tasks.md', got '%s'", m.taskFile)
	}
	if !m.running {
		t.Error("expected running to be true")
	}
	if m.total != 3 {
		t.Errorf("expected total 3, got %d", m.total)
	}
	if got := len(m.tasks.Items()); got != 3 {
		t.Errorf("expected 3 task rows, got %d", got)
	}
}

func TestInit(t *testing.T) {
	m := testModel(nil)
	if m.Init() == nil {
		t.Error("expected Init() to arm the event reader")
	}

	m.events = nil
	if m.Init() != nil {
		t.Error("expected Init() to return nil without an event stream")
	}
}

func TestUpdateQuitWhenFinished(t *testing.T) {
	m := testModel(nil)
	m.running = false

	newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	model := newModel.(Model)
	if !model.quitting {
		t.Error("expected quitting to be true after 'q' key")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit command to produce tea.QuitMsg")
	}
}

func TestUpdateStopRequest(t *testing.T) {
	stop := &fakeStopper{}
	m := testModel(stop)

	newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	model := newModel.(Model)

	if stop.stops != 1 {
		t.Errorf("expected 1 stop call, got %d", stop.stops)
	}
	if !model.stopRequested {
		t.Error("expected stopRequested to be true")
	}
	if model.quitting {
		t.Error("expected the dashboard to stay open while the run winds down")
	}

	// Second press escalates to cancelling the active turn.
	newModel2, _ := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	model2 := newModel2.(Model)

	if stop.stops != 2 {
		t.Errorf("expected 2 stop calls, got %d", stop.stops)
	}
	if model2.quitting {
		t.Error("expected the dashboard to stay open until the run reports done")
	}
}

func TestUpdateWindowSize(t *testing.T) {
	m := testModel(nil)

	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model := newModel.(Model)

	if model.width != 120 {
		t.Errorf("expected width 120, got %d", model.width)
	}
	if model.height != 40 {
		t.Errorf("expected height 40, got %d", model.height)
	}
}

func TestUpdateStage(t *testing.T) {
	m := testModel(nil)

	newModel, _ := m.Update(StageMsg{Stage: progress.StageExecuting})
	model := newModel.(Model)

	if model.stage != "Executing" {
		t.Errorf("expected stage 'Executing', got '%s'", model.stage)
	}
	if !strings.Contains(model.output, "[STAGE] Executing") {
		t.Errorf("expected stage line in the run log, got '%s'", model.output)
	}
}

func TestUpdateTaskFlow(t *testing.T) {
	m := testModel(nil)

	newModel, _ := m.Update(TaskMsg{Action: progress.TaskStart, Text: "task one"})
	model := newModel.(Model)

	item := model.tasks.Items()[0].(taskItem)
	if item.state != taskRunning {
		t.Errorf("expected task one to be running, got state %d", item.state)
	}
	if model.task != "task one" {
		t.Errorf("expected active task 'task one', got '%s'", model.task)
	}

	newModel2, _ := model.Update(TaskMsg{Action: progress.TaskDone, Text: "task one"})
	model2 := newModel2.(Model)

	item = model2.tasks.Items()[0].(taskItem)
	if item.state != taskDone {
		t.Errorf("expected task one to be done, got state %d", item.state)
	}
	if model2.done != 1 {
		t.Errorf("expected done count 1, got %d", model2.done)
	}

	newModel3, _ := model2.Update(TaskMsg{Action: progress.TaskSkipped, Text: "task two", Reason: "blocked on credentials"})
	model3 := newModel3.(Model)

	item = model3.tasks.Items()[1].(taskItem)
	if item.state != taskSkipped {
		t.Errorf("expected task two to be skipped, got state %d", item.state)
	}
	if item.reason != "blocked on credentials" {
		t.Errorf("expected skip reason on the row, got '%s'", item.reason)
	}
	if model3.skipped != 1 {
		t.Errorf("expected skipped count 1, got %d", model3.skipped)
	}
}

func TestUpdateTaskAppendsUnknown(t *testing.T) {
	m := testModel(nil)

	newModel, _ := m.Update(TaskMsg{Action: progress.TaskStart, Text: "write the parser"})
	model := newModel.(Model)

	if got := len(model.tasks.Items()); got != 4 {
		t.Fatalf("expected a new row for an unseeded task, got %d rows", got)
	}
	if model.total != 4 {
		t.Errorf("expected total to grow to 4, got %d", model.total)
	}

	item := model.tasks.Items()[3].(taskItem)
	if item.text != "write the parser" || item.state != taskRunning {
		t.Errorf("unexpected appended row: %+v", item)
	}
}

func TestUpdateHeartbeat(t *testing.T) {
	m := testModel(nil)

	newModel, _ := m.Update(HeartbeatMsg{
		Snapshot: progress.Snapshot{Task: "task two", Attempt: 2, Elapsed: 90 * time.Second},
		ETA:      45 * time.Second,
	})
	model := newModel.(Model)

	if model.task != "task two" {
		t.Errorf("expected task 'task two', got '%s'", model.task)
	}
	if model.attempt != 2 {
		t.Errorf("expected attempt 2, got %d", model.attempt)
	}
	if model.elapsed != 90*time.Second {
		t.Errorf("expected elapsed 90s, got %v", model.elapsed)
	}
	if model.eta != 45*time.Second {
		t.Errorf("expected eta 45s, got %v", model.eta)
	}
}

func TestUpdateLoop(t *testing.T) {
	m := testModel(nil)

	newModel, _ := m.Update(LoopMsg{Task: "task one", Recovered: true})
	model := newModel.(Model)

	if !strings.Contains(model.output, "[LOOP] auto-recovered: task one") {
		t.Errorf("expected loop line in the run log, got '%s'", model.output)
	}
}

func TestUpdateDoneStaysOpen(t *testing.T) {
	m := testModel(nil)

	newModel, _ := m.Update(DoneMsg{Done: 3, Total: 3, Elapsed: 2 * time.Minute})
	model := newModel.(Model)

	if model.running {
		t.Error("expected running to be false after the final summary")
	}
	if model.elapsed != 2*time.Minute {
		t.Errorf("expected elapsed frozen at 2m, got %v", model.elapsed)
	}
	if !strings.Contains(model.output, "press q to exit") {
		t.Errorf("expected exit hint in the run log, got '%s'", model.output)
	}
}

func TestUpdateDoneQuitsAfterStopRequest(t *testing.T) {
	m := testModel(&fakeStopper{})
	m.stopRequested = true

	newModel, cmd := m.Update(DoneMsg{Done: 1, Total: 3, Stopped: true})
	model := newModel.(Model)

	if !model.quitting {
		t.Error("expected the dashboard to quit once the stopped run reports done")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit command to produce tea.QuitMsg")
	}
}

func TestWaitForEvent(t *testing.T) {
	ch := make(chan progress.Event, 1)

	ch <- progress.StageEvent{Stage: progress.StagePlanning}
	msg := waitForEvent(ch)()
	stage, ok := msg.(StageMsg)
	if !ok {
		t.Fatalf("expected StageMsg, got %T", msg)
	}
	if stage.Stage != progress.StagePlanning {
		t.Errorf("expected planning stage, got %v", stage.Stage)
	}

	ch <- progress.TaskEvent{Action: progress.TaskDone, Text: "task one"}
	if _, ok := waitForEvent(ch)().(TaskMsg); !ok {
		t.Error("expected TaskMsg for a task event")
	}

	ch <- progress.DoneEvent{Done: 1, Total: 1}
	if _, ok := waitForEvent(ch)().(DoneMsg); !ok {
		t.Error("expected DoneMsg for the final summary")
	}

	close(ch)
	if _, ok := waitForEvent(ch)().(eventsClosedMsg); !ok {
		t.Error("expected eventsClosedMsg after the stream closes")
	}
}

func TestView(t *testing.T) {
	m := testModel(nil)
	m.width = 100
	m.height = 30

	view := m.View()

	if len(view) == 0 {
		t.Fatal("expected non-empty view")
	}
	if !strings.Contains(view, "anton") {
		t.Error("expected the header to name the program")
	}
	if !strings.Contains(view, "Tasks") {
		t.Error("expected the task panel title")
	}
	if !strings.Contains(view, "Run Log") {
		t.Error("expected the log panel title")
	}
}

func TestViewQuitting(t *testing.T) {
	m := testModel(nil)
	m.quitting = true

	if view := m.View(); view != "Goodbye!\n" {
		t.Errorf("expected 'Goodbye!\\n', got '%s'", view)
	}
}

func TestTaskItem(t *testing.T) {
	item := taskItem{text: "add login handler", state: taskRunning}

	if !strings.Contains(item.Title(), "add login handler") {
		t.Errorf("expected title to carry the task text, got '%s'", item.Title())
	}
	if item.FilterValue() != "add login handler" {
		t.Errorf("expected filter value 'add login handler', got '%s'", item.FilterValue())
	}
	if item.Description() != "" {
		t.Errorf("expected empty description without a reason, got '%s'", item.Description())
	}

	item.state = taskFailed
	item.reason = "review rejected the change"
	if !strings.Contains(item.Description(), "review rejected the change") {
		t.Errorf("expected the reason in the description, got '%s'", item.Description())
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "0:45"},
		{90 * time.Second, "1:30"},
		{61 * time.Minute, "1:01:00"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%v) = %s, want %s", tc.d, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected 'short', got '%s'", got)
	}
	if got := truncate("a very long task description", 10); got != "a very ..." {
		t.Errorf("expected 'a very ...', got '%s'", got)
	}
}
