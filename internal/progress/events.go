// Package progress formats and delivers run progress to external
// surfaces without ever blocking the run.
package progress

import (
	"fmt"
	"time"
)

// Event is a progress notification. Every event renders itself as a
// single human-readable line.
type Event interface {
	String() string
}

// Stage identifies a run phase. External labels are fixed; internal
// naming may change without affecting observers.
type Stage int

const (
	StagePreflight Stage = iota
	StagePlanning
	StageExecuting
)

// Label returns the stable external label for the stage.
func (s Stage) Label() string {
	switch s {
	case StagePreflight:
		return "Pre-flight"
	case StageExecuting:
		return "Executing"
	default:
		return "Planning"
	}
}

// StageEvent announces a phase change.
type StageEvent struct {
	Stage Stage
}

func (e StageEvent) String() string {
	return fmt.Sprintf("[STAGE] %s", e.Stage.Label())
}

// Task lifecycle actions carried by TaskEvent.
const (
	TaskStart      = "start"
	TaskDone       = "done"
	TaskSkipped    = "skipped"
	TaskFailed     = "failed"
	TaskDecomposed = "decomposed"
)

// TaskEvent announces a task lifecycle transition.
type TaskEvent struct {
	Action string
	Text   string
	Reason string
}

func (e TaskEvent) String() string {
	switch e.Action {
	case TaskDone:
		return fmt.Sprintf("[TASK] done: %s", e.Text)
	case TaskSkipped:
		return fmt.Sprintf("[TASK] skipped: %s (%s)", e.Text, e.Reason)
	case TaskFailed:
		return fmt.Sprintf("[TASK] failed: %s (%s)", e.Text, e.Reason)
	case TaskDecomposed:
		return fmt.Sprintf("[TASK] decomposed: %s (%s)", e.Text, e.Reason)
	default:
		return fmt.Sprintf("[TASK] starting: %s", e.Text)
	}
}

// Snapshot is the transient progress state a heartbeat reads. It is
// recomputed per beat and never persisted.
type Snapshot struct {
	Done    int
	Skipped int
	Total   int
	Task    string
	Attempt int
	Elapsed time.Duration
}

// HeartbeatEvent is the periodic progress summary.
type HeartbeatEvent struct {
	Snapshot
	ETA time.Duration
}

func (e HeartbeatEvent) String() string {
	s := fmt.Sprintf("[%d/%d] %s (attempt %d) elapsed %s",
		e.Done+e.Skipped, e.Total, e.Task, e.Attempt, formatDuration(e.Elapsed))
	if e.ETA > 0 {
		s += fmt.Sprintf(", eta %s", formatDuration(e.ETA))
	}
	return s
}

// LoopEvent reports a tool-call-loop condition surfaced by the agent
// session. The wording distinguishes handled conditions from
// abandoned ones.
type LoopEvent struct {
	Task      string
	Recovered bool
	Detail    string
}

func (e LoopEvent) String() string {
	if e.Recovered {
		return fmt.Sprintf("[LOOP] auto-recovered: %s", e.Task)
	}
	return fmt.Sprintf("[LOOP] final loop failure: %s", e.Task)
}

// DoneEvent is the final run summary. Stopped marks an intentional
// stop as opposed to completion or failure.
type DoneEvent struct {
	Done    int
	Skipped int
	Failed  int
	Total   int
	Elapsed time.Duration
	Stopped bool
	Err     string
}

func (e DoneEvent) String() string {
	state := "completed"
	switch {
	case e.Stopped:
		state = "stopped"
	case e.Err != "":
		state = "failed"
	}
	s := fmt.Sprintf("[DONE] %s: %d done, %d skipped, %d failed of %d in %s",
		state, e.Done, e.Skipped, e.Failed, e.Total, formatDuration(e.Elapsed))
	if e.Err != "" {
		s += ": " + e.Err
	}
	return s
}

// EstimateETA projects the remaining time linearly from elapsed time
// and handled-task counts. Zero when nothing has been handled yet or
// nothing remains.
func EstimateETA(elapsed time.Duration, handled, total int) time.Duration {
	if handled <= 0 || total <= handled {
		return 0
	}
	per := elapsed / time.Duration(handled)
	return per * time.Duration(total-handled)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
