package progress

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStageLabels(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StagePreflight, "Pre-flight"},
		{StagePlanning, "Planning"},
		{StageExecuting, "Executing"},
	}
	for _, tt := range tests {
		if got := tt.stage.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestTaskEventWording(t *testing.T) {
	tests := []struct {
		name string
		ev   TaskEvent
		want string
	}{
		{
			name: "start",
			ev:   TaskEvent{Action: TaskStart, Text: "Add login handler"},
			want: "[TASK] starting: Add login handler",
		},
		{
			name: "done",
			ev:   TaskEvent{Action: TaskDone, Text: "Add login handler"},
			want: "[TASK] done: Add login handler",
		},
		{
			name: "skipped carries reason",
			ev:   TaskEvent{Action: TaskSkipped, Text: "Wire OAuth", Reason: "missing credentials"},
			want: "[TASK] skipped: Wire OAuth (missing credentials)",
		},
		{
			name: "failed carries reason",
			ev:   TaskEvent{Action: TaskFailed, Text: "Wire OAuth", Reason: "timed out"},
			want: "[TASK] failed: Wire OAuth (timed out)",
		},
		{
			name: "decomposed names subtask count",
			ev:   TaskEvent{Action: TaskDecomposed, Text: "Build auth", Reason: "2 subtasks"},
			want: "[TASK] decomposed: Build auth (2 subtasks)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeartbeatEventString(t *testing.T) {
	ev := HeartbeatEvent{
		Snapshot: Snapshot{
			Done:    2,
			Skipped: 1,
			Total:   7,
			Task:    "Add login handler",
			Attempt: 2,
			Elapsed: 90 * time.Second,
		},
		ETA: 3 * time.Minute,
	}
	got := ev.String()
	for _, want := range []string{"[3/7]", "Add login handler", "attempt 2", "1m30s", "eta 3m0s"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}

func TestHeartbeatEventString_NoETA(t *testing.T) {
	ev := HeartbeatEvent{Snapshot: Snapshot{Total: 5, Task: "first", Attempt: 1}}
	if got := ev.String(); strings.Contains(got, "eta") {
		t.Errorf("String() = %q, want no eta before progress exists", got)
	}
}

func TestLoopEventWording(t *testing.T) {
	recovered := LoopEvent{Task: "Add cache", Recovered: true}
	if got := recovered.String(); !strings.Contains(got, "auto-recovered") {
		t.Errorf("String() = %q, want auto-recovered wording", got)
	}
	final := LoopEvent{Task: "Add cache", Recovered: false}
	if got := final.String(); !strings.Contains(got, "final loop failure") {
		t.Errorf("String() = %q, want final loop failure wording", got)
	}
}

func TestDoneEventWording(t *testing.T) {
	tests := []struct {
		name string
		ev   DoneEvent
		want string
	}{
		{
			name: "completed",
			ev:   DoneEvent{Done: 3, Total: 3, Elapsed: time.Minute},
			want: "[DONE] completed: 3 done, 0 skipped, 0 failed of 3 in 1m0s",
		},
		{
			name: "stopped",
			ev:   DoneEvent{Done: 1, Total: 3, Elapsed: time.Minute, Stopped: true},
			want: "[DONE] stopped: 1 done, 0 skipped, 0 failed of 3 in 1m0s",
		},
		{
			name: "failed",
			ev:   DoneEvent{Done: 1, Failed: 1, Total: 3, Elapsed: time.Minute, Err: "tree is dirty"},
			want: "[DONE] failed: 1 done, 0 skipped, 1 failed of 3 in 1m0s: tree is dirty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEstimateETA(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		handled int
		total   int
		want    time.Duration
	}{
		{"linear projection", 2 * time.Minute, 2, 6, 4 * time.Minute},
		{"nothing handled", time.Minute, 0, 6, 0},
		{"all handled", time.Minute, 6, 6, 0},
		{"negative handled", time.Minute, -1, 6, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateETA(tt.elapsed, tt.handled, tt.total); got != tt.want {
				t.Errorf("EstimateETA() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBroadcaster_FansOut(t *testing.T) {
	b := NewBroadcaster(4)
	defer b.Close()

	first := b.Subscribe()
	second := b.Subscribe()

	b.Publish(StageEvent{Stage: StagePlanning})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case ev := <-ch:
			if _, ok := ev.(StageEvent); !ok {
				t.Errorf("received %T, want StageEvent", ev)
			}
		default:
			t.Error("subscriber did not receive the event")
		}
	}
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	b := NewBroadcaster(1)
	defer b.Close()

	ch := b.Subscribe()
	b.Publish(TaskEvent{Action: TaskStart, Text: "one"})
	b.Publish(TaskEvent{Action: TaskStart, Text: "two"})
	b.Publish(TaskEvent{Action: TaskStart, Text: "three"})

	if got := b.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	ev := <-ch
	task, ok := ev.(TaskEvent)
	if !ok || task.Text != "one" {
		t.Errorf("kept event = %+v, want the first published", ev)
	}
}

func TestBroadcaster_PublishNeverBlocks(t *testing.T) {
	b := NewBroadcaster(1)
	defer b.Close()
	b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(StageEvent{Stage: StageExecuting})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()
	b.Close()
	b.Close()

	if _, open := <-ch; open {
		t.Error("subscriber channel still open after Close")
	}
	b.Publish(StageEvent{Stage: StagePlanning})

	late := b.Subscribe()
	if _, open := <-late; open {
		t.Error("subscribing after Close returned an open channel")
	}
}

func TestHeartbeat_EmitsFromSnapshot(t *testing.T) {
	b := NewBroadcaster(8)
	defer b.Close()
	ch := b.Subscribe()

	h := StartHeartbeat(5*time.Millisecond, func() Snapshot {
		return Snapshot{Done: 1, Total: 4, Task: "current", Attempt: 1, Elapsed: time.Minute}
	}, b)
	defer h.Stop()

	select {
	case ev := <-ch:
		beat, ok := ev.(HeartbeatEvent)
		if !ok {
			t.Fatalf("received %T, want HeartbeatEvent", ev)
		}
		if beat.Task != "current" || beat.Done != 1 || beat.Total != 4 {
			t.Errorf("heartbeat = %+v, want snapshot values", beat)
		}
		if beat.ETA != 3*time.Minute {
			t.Errorf("ETA = %v, want 3m0s", beat.ETA)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat emitted")
	}
}

func TestHeartbeat_StopIsIdempotent(t *testing.T) {
	b := NewBroadcaster(1)
	defer b.Close()
	h := StartHeartbeat(time.Hour, func() Snapshot { return Snapshot{} }, b)
	h.Stop()
	h.Stop()
}

func TestHeadless_TextLines(t *testing.T) {
	var buf bytes.Buffer
	h := NewHeadless(false)
	h.SetWriter(&buf)

	h.Render(StageEvent{Stage: StageExecuting})
	h.Render(TaskEvent{Action: TaskDone, Text: "Add login handler"})

	got := buf.String()
	want := "[STAGE] Executing\n[TASK] done: Add login handler\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestHeadless_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	h := NewHeadless(true)
	h.SetWriter(&buf)

	h.Render(TaskEvent{Action: TaskSkipped, Text: "Wire OAuth", Reason: "blocked"})
	h.Render(DoneEvent{Done: 2, Total: 3, Elapsed: time.Minute, Stopped: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var task map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &task); err != nil {
		t.Fatalf("first line is not JSON: %v", err)
	}
	if task["type"] != "task" || task["action"] != "skipped" || task["reason"] != "blocked" {
		t.Errorf("task line = %v", task)
	}

	var done map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &done); err != nil {
		t.Fatalf("second line is not JSON: %v", err)
	}
	if done["type"] != "done" || done["stopped"] != true {
		t.Errorf("done line = %v", done)
	}
	if _, present := done["error"]; present {
		t.Error("done line carries an error field on a clean stop")
	}
}

func TestHeadless_RunConsumesUntilClose(t *testing.T) {
	var buf bytes.Buffer
	h := NewHeadless(false)
	h.SetWriter(&buf)

	events := make(chan Event, 2)
	events <- StageEvent{Stage: StagePlanning}
	events <- StageEvent{Stage: StageExecuting}
	close(events)

	h.Run(events)

	if got := buf.String(); got != "[STAGE] Planning\n[STAGE] Executing\n" {
		t.Errorf("output = %q", got)
	}
}
