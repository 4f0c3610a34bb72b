// Package report persists an end-of-run summary for later inspection.
// Reports are informational only; nothing reads them back on start.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/visorcraft/anton/internal/logging"
)

// NewRunID returns a sortable unique run identifier.
func NewRunID() string {
	return fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
}

// Task outcome values recorded in a run summary.
const (
	OutcomeDone    = "done"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// TaskReport records how one task ended.
type TaskReport struct {
	// Task is the checklist item text.
	Task string `yaml:"task"`

	// Line is the item's source line in the task file.
	Line int `yaml:"line,omitempty"`

	// Outcome is one of done, skipped or failed.
	Outcome string `yaml:"outcome"`

	// Reason explains a skip or failure, verbatim where the agent
	// supplied one.
	Reason string `yaml:"reason,omitempty"`

	// Attempts counts the turns spent on this task.
	Attempts int `yaml:"attempts"`

	// Commit is the hash recorded for the task's work, empty when
	// there was nothing to commit.
	Commit string `yaml:"commit,omitempty"`

	// DurationMS is wall-clock time spent on the task.
	DurationMS int64 `yaml:"duration_ms"`
}

// LoopNote records one tool-call-loop occurrence.
type LoopNote struct {
	Task      string `yaml:"task"`
	Recovered bool   `yaml:"recovered"`
	Detail    string `yaml:"detail,omitempty"`
}

// RunSummary is the full record of one run.
type RunSummary struct {
	RunID      string       `yaml:"run_id"`
	TaskFile   string       `yaml:"task_file"`
	StartedAt  time.Time    `yaml:"started_at"`
	FinishedAt time.Time    `yaml:"finished_at"`
	DurationMS int64        `yaml:"duration_ms"`
	ExitReason string       `yaml:"exit_reason"`
	Stopped    bool         `yaml:"stopped,omitempty"`
	Total      int          `yaml:"total_tasks"`
	Done       int          `yaml:"done"`
	Skipped    int          `yaml:"skipped"`
	Failed     int          `yaml:"failed"`
	Tasks      []TaskReport `yaml:"tasks"`
	Commits    []string     `yaml:"commits,omitempty"`
	Loops      []LoopNote   `yaml:"loops,omitempty"`
}

// NewRunSummary starts a summary for a run beginning now.
func NewRunSummary(runID, taskFile string, total int) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		TaskFile:  taskFile,
		StartedAt: time.Now().UTC(),
		Total:     total,
	}
}

// Record appends a task report and folds its commit into the run's
// commit list.
func (s *RunSummary) Record(t TaskReport) {
	s.Tasks = append(s.Tasks, t)
	if t.Commit != "" {
		s.Commits = append(s.Commits, t.Commit)
	}
}

// RecordLoop appends a loop note.
func (s *RunSummary) RecordLoop(n LoopNote) {
	s.Loops = append(s.Loops, n)
}

// Finalize stamps the finish time and recomputes the aggregate counts
// from the per-task reports.
func (s *RunSummary) Finalize(finished time.Time, exitReason string, stopped bool) {
	s.FinishedAt = finished.UTC()
	s.DurationMS = finished.Sub(s.StartedAt).Milliseconds()
	s.ExitReason = exitReason
	s.Stopped = stopped

	s.Done, s.Skipped, s.Failed = 0, 0, 0
	for _, t := range s.Tasks {
		switch t.Outcome {
		case OutcomeDone:
			s.Done++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}
}

// Writer persists run summaries under the state directory.
type Writer struct {
	dir    string
	logger *logging.Logger
}

// NewWriter creates a writer rooted at stateDir/reports.
func NewWriter(stateDir string, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Writer{dir: filepath.Join(stateDir, "reports"), logger: logger}
}

// Write persists the summary as YAML, returning the file path. A
// failure is logged and returned but must never abort the caller's
// shutdown path.
func (w *Writer) Write(summary *RunSummary) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.logger.Warn("could not create report directory", "dir", w.dir, "error", err)
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := yaml.Marshal(summary)
	if err != nil {
		w.logger.Warn("could not encode run report", "run_id", summary.RunID, "error", err)
		return "", fmt.Errorf("failed to encode run report: %w", err)
	}

	path := filepath.Join(w.dir, summary.RunID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.logger.Warn("could not write run report", "path", path, "error", err)
		return "", fmt.Errorf("failed to write run report: %w", err)
	}

	w.logger.Info("run report written", "path", path)
	return path, nil
}
