package report

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestNewRunID_Format(t *testing.T) {
	id := NewRunID()
	matched, err := regexp.MatchString(`^run-\d{8}-\d{6}-[0-9a-f]{8}$`, id)
	if err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Errorf("run ID %q does not match expected format", id)
	}
	if other := NewRunID(); other == id {
		t.Error("two run IDs should not collide")
	}
}

func TestRunSummary_Finalize(t *testing.T) {
	s := NewRunSummary("run-x", "TASKS.md", 4)
	s.Record(TaskReport{Task: "one", Outcome: OutcomeDone, Commit: "abc123"})
	s.Record(TaskReport{Task: "two", Outcome: OutcomeDone, Commit: "def456"})
	s.Record(TaskReport{Task: "three", Outcome: OutcomeSkipped, Reason: "blocked: missing creds"})
	s.Record(TaskReport{Task: "four", Outcome: OutcomeFailed, Reason: "timed out"})

	finish := s.StartedAt.Add(90 * time.Second)
	s.Finalize(finish, "all pending tasks handled", false)

	if s.Done != 2 || s.Skipped != 1 || s.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", s.Done, s.Skipped, s.Failed)
	}
	if s.DurationMS != 90000 {
		t.Errorf("DurationMS = %d, want 90000", s.DurationMS)
	}
	if len(s.Commits) != 2 {
		t.Errorf("commits = %v, want the two task commits", s.Commits)
	}
	if s.Stopped {
		t.Error("Stopped should be false for a completed run")
	}
}

func TestRunSummary_RecordSkipsEmptyCommit(t *testing.T) {
	s := NewRunSummary("run-x", "TASKS.md", 1)
	s.Record(TaskReport{Task: "one", Outcome: OutcomeDone})
	if len(s.Commits) != 0 {
		t.Errorf("commits = %v, want none for an empty hash", s.Commits)
	}
}

func TestWriter_WritesYAML(t *testing.T) {
	stateDir := t.TempDir()
	w := NewWriter(stateDir, nil)

	s := NewRunSummary("run-20260101-000000-deadbeef", "TASKS.md", 2)
	s.Record(TaskReport{Task: "Add login handler", Line: 12, Outcome: OutcomeDone, Attempts: 1, Commit: "abc123", DurationMS: 4200})
	s.RecordLoop(LoopNote{Task: "Add login handler", Recovered: true, Detail: "repetitive tool use"})
	s.Finalize(s.StartedAt.Add(time.Minute), "all pending tasks handled", false)

	path, err := w.Write(s)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := filepath.Join(stateDir, "reports", "run-20260101-000000-deadbeef.yaml")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got RunSummary
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("report is not valid YAML: %v", err)
	}
	if got.RunID != s.RunID || got.Done != 1 || got.Total != 2 {
		t.Errorf("round-tripped summary = %+v", got)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Commit != "abc123" {
		t.Errorf("tasks = %+v", got.Tasks)
	}
	if len(got.Loops) != 1 || !got.Loops[0].Recovered {
		t.Errorf("loops = %+v", got.Loops)
	}
}

func TestWriter_OmitsEmptySections(t *testing.T) {
	stateDir := t.TempDir()
	w := NewWriter(stateDir, nil)

	s := NewRunSummary("run-x", "TASKS.md", 0)
	s.Finalize(s.StartedAt, "no pending tasks", false)

	path, err := w.Write(s)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, absent := range []string{"commits:", "loops:", "stopped:"} {
		if strings.Contains(text, absent) {
			t.Errorf("report should omit %q when empty:\n%s", absent, text)
		}
	}
}

func TestWriter_UnwritableDirReturnsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions do not bind for root")
	}
	stateDir := t.TempDir()
	if err := os.Chmod(stateDir, 0o555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(stateDir, 0o755)

	w := NewWriter(stateDir, nil)
	s := NewRunSummary("run-x", "TASKS.md", 0)
	if _, err := w.Write(s); err == nil {
		t.Error("Write() should surface the failure to the caller")
	}
}
