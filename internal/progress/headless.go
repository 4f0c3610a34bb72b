package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Headless renders progress events for non-interactive runs, either
// as prefixed lines or as JSON Lines.
type Headless struct {
	jsonl  bool
	writer io.Writer
}

// NewHeadless creates a renderer writing to stdout.
func NewHeadless(jsonl bool) *Headless {
	return &Headless{jsonl: jsonl, writer: os.Stdout}
}

// SetWriter redirects output, mainly for testing.
func (h *Headless) SetWriter(w io.Writer) {
	h.writer = w
}

// Run consumes events until the channel closes.
func (h *Headless) Run(events <-chan Event) {
	for ev := range events {
		h.Render(ev)
	}
}

// Render writes one event.
func (h *Headless) Render(ev Event) {
	if h.jsonl {
		h.writeJSON(ev)
		return
	}
	fmt.Fprintln(h.writer, ev.String())
}

func (h *Headless) writeJSON(ev Event) {
	data := map[string]interface{}{}
	switch e := ev.(type) {
	case StageEvent:
		data["type"] = "stage"
		data["stage"] = e.Stage.Label()
	case TaskEvent:
		data["type"] = "task"
		data["action"] = e.Action
		data["task"] = e.Text
		if e.Reason != "" {
			data["reason"] = e.Reason
		}
	case HeartbeatEvent:
		data["type"] = "heartbeat"
		data["done"] = e.Done
		data["skipped"] = e.Skipped
		data["total"] = e.Total
		data["task"] = e.Task
		data["attempt"] = e.Attempt
		data["elapsed_ms"] = e.Elapsed.Milliseconds()
		if e.ETA > 0 {
			data["eta_ms"] = e.ETA.Milliseconds()
		}
	case LoopEvent:
		data["type"] = "loop"
		data["task"] = e.Task
		data["recovered"] = e.Recovered
		if e.Detail != "" {
			data["detail"] = e.Detail
		}
	case DoneEvent:
		data["type"] = "done"
		data["done"] = e.Done
		data["skipped"] = e.Skipped
		data["failed"] = e.Failed
		data["total"] = e.Total
		data["elapsed_ms"] = e.Elapsed.Milliseconds()
		data["stopped"] = e.Stopped
		if e.Err != "" {
			data["error"] = e.Err
		}
	default:
		data["type"] = "event"
		data["text"] = ev.String()
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintln(h.writer, string(b))
}
