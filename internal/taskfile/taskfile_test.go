package taskfile

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParse_PhasesFromHeadings(t *testing.T) {
	content := `# Build

## Backend

- [ ] add handler
- [ ] wire routes

## Frontend

- [ ] render list

# Ship

- [ ] tag release
`
	f := Parse(content, "plan.md")

	if f.Total != 4 {
		t.Fatalf("expected 4 tasks, got %d", f.Total)
	}
	if len(f.Pending) != 4 {
		t.Fatalf("expected 4 pending tasks, got %d", len(f.Pending))
	}

	wantPhases := [][]string{
		{"Build", "Backend"},
		{"Build", "Backend"},
		{"Build", "Frontend"},
		{"Ship"},
	}
	for i, task := range f.Pending {
		if !reflect.DeepEqual(task.Phases, wantPhases[i]) {
			t.Errorf("task %q: phases = %v, want %v", task.Text, task.Phases, wantPhases[i])
		}
	}

	if got := f.Pending[0].Breadcrumb(); got != "Build > Backend" {
		t.Errorf("breadcrumb = %q, want %q", got, "Build > Backend")
	}
	if got := f.Pending[3].Phase(); got != "Ship" {
		t.Errorf("phase = %q, want %q", got, "Ship")
	}
}

func TestParse_HeadingStackPopsSiblings(t *testing.T) {
	content := `## First

- [ ] a

## Second

- [ ] b
`
	f := Parse(content, "plan.md")

	if len(f.Pending) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(f.Pending))
	}
	if got := f.Pending[1].Phase(); got != "Second" {
		t.Errorf("second task phase = %q, want %q", got, "Second")
	}
	if len(f.Pending[1].Phases) != 1 {
		t.Errorf("second task phases = %v, want single element", f.Pending[1].Phases)
	}
}

func TestParse_CheckboxVariants(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		checked bool
		text    string
	}{
		{"dash unchecked", "- [ ] dash task", false, "dash task"},
		{"dash checked lower", "- [x] done task", true, "done task"},
		{"dash checked upper", "- [X] shouted task", true, "shouted task"},
		{"star bullet", "* [ ] star task", false, "star task"},
		{"plus bullet", "+ [ ] plus task", false, "plus task"},
		{"trailing spaces trimmed", "- [ ] padded task   ", false, "padded task"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Parse(tt.line+"\n", "plan.md")
			if f.Total != 1 {
				t.Fatalf("expected 1 task, got %d", f.Total)
			}
			var task Task
			if tt.checked {
				if len(f.Completed) != 1 {
					t.Fatalf("expected task in completed, pending=%d completed=%d", len(f.Pending), len(f.Completed))
				}
				task = f.Completed[0]
			} else {
				if len(f.Pending) != 1 {
					t.Fatalf("expected task in pending, pending=%d completed=%d", len(f.Pending), len(f.Completed))
				}
				task = f.Pending[0]
			}
			if task.Text != tt.text {
				t.Errorf("text = %q, want %q", task.Text, tt.text)
			}
			if task.Checked != tt.checked {
				t.Errorf("checked = %v, want %v", task.Checked, tt.checked)
			}
		})
	}
}

func TestParse_NestedChildren(t *testing.T) {
	content := `- [ ] parent
  - [ ] child one
  - [x] child two
- [ ] sibling
`
	f := Parse(content, "plan.md")

	if f.Total != 4 {
		t.Fatalf("expected 4 tasks, got %d", f.Total)
	}

	parent := f.Pending[0]
	if parent.Text != "parent" {
		t.Fatalf("first pending = %q, want parent", parent.Text)
	}
	if len(parent.Children) != 2 {
		t.Fatalf("parent children = %d, want 2", len(parent.Children))
	}
	if parent.Children[0].Text != "child one" || parent.Children[1].Text != "child two" {
		t.Errorf("children = %q, %q", parent.Children[0].Text, parent.Children[1].Text)
	}

	// Depth-first: parent, then its children, then the sibling.
	wantOrder := []string{"parent", "child one", "sibling"}
	var gotOrder []string
	for _, task := range f.Pending {
		gotOrder = append(gotOrder, task.Text)
	}
	if !reflect.DeepEqual(gotOrder, wantOrder) {
		t.Errorf("pending order = %v, want %v", gotOrder, wantOrder)
	}
	if len(f.Completed) != 1 || f.Completed[0].Text != "child two" {
		t.Errorf("completed = %v, want [child two]", f.Completed)
	}
}

func TestParse_TabIndentNestsChildren(t *testing.T) {
	content := "- [ ] parent\n\t- [ ] tabbed child\n"
	f := Parse(content, "plan.md")

	if len(f.Pending) != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", len(f.Pending))
	}
	if len(f.Pending[0].Children) != 1 {
		t.Fatalf("parent children = %d, want 1", len(f.Pending[0].Children))
	}
	if f.Pending[0].Children[0].Text != "tabbed child" {
		t.Errorf("child text = %q", f.Pending[0].Children[0].Text)
	}
}

func TestParse_ParentCompletionIsExplicit(t *testing.T) {
	content := `- [ ] parent
  - [x] child one
  - [x] child two
`
	f := Parse(content, "plan.md")

	if len(f.Pending) != 1 || f.Pending[0].Text != "parent" {
		t.Fatalf("parent should stay pending, pending=%v", f.Pending)
	}
	if len(f.Completed) != 2 {
		t.Fatalf("expected 2 completed children, got %d", len(f.Completed))
	}
}

func TestParse_ChildrenInheritPhases(t *testing.T) {
	content := `## Setup

- [ ] parent
  - [ ] child
`
	f := Parse(content, "plan.md")

	for _, task := range f.Pending {
		if task.Phase() != "Setup" {
			t.Errorf("task %q phase = %q, want Setup", task.Text, task.Phase())
		}
	}
}

func TestParse_SkipsFencedCode(t *testing.T) {
	content := "- [ ] real task\n" +
		"```markdown\n" +
		"- [ ] example inside fence\n" +
		"## Fake Heading\n" +
		"```\n" +
		"- [ ] second real task\n"
	f := Parse(content, "plan.md")

	if f.Total != 2 {
		t.Fatalf("expected 2 tasks, got %d", f.Total)
	}
	for _, task := range f.Pending {
		if strings.Contains(task.Text, "fence") {
			t.Errorf("fenced content parsed as task: %q", task.Text)
		}
		if len(task.Phases) != 0 {
			t.Errorf("fenced heading leaked into phases: %v", task.Phases)
		}
	}
}

func TestParse_IgnoresPlainListItems(t *testing.T) {
	content := `- plain bullet without checkbox
- [ ] actual task
1. numbered item
`
	f := Parse(content, "plan.md")

	if f.Total != 1 {
		t.Fatalf("expected 1 task, got %d", f.Total)
	}
	if f.Pending[0].Text != "actual task" {
		t.Errorf("task = %q", f.Pending[0].Text)
	}
}

func TestParse_EmptyContent(t *testing.T) {
	f := Parse("", "plan.md")
	if f.Total != 0 || len(f.Pending) != 0 || len(f.Completed) != 0 {
		t.Errorf("empty content produced tasks: %+v", f)
	}
}

func TestParse_KeyIdentityStableAcrossReparse(t *testing.T) {
	content := `# Plan

- [ ] first task
- [ ] second task
`
	first := Parse(content, "plan.md")
	second := Parse(content, "plan.md")

	if len(first.Pending) != 2 || len(second.Pending) != 2 {
		t.Fatalf("expected 2 pending in both parses")
	}
	for i := range first.Pending {
		if first.Pending[i].Key() != second.Pending[i].Key() {
			t.Errorf("key drifted across reparse: %q vs %q", first.Pending[i].Key(), second.Pending[i].Key())
		}
	}
	if first.Pending[0].Key() == first.Pending[1].Key() {
		t.Error("distinct tasks share a key")
	}
}

func TestParse_KeyEncodesLineAndText(t *testing.T) {
	content := `- [ ] repeated text
- [ ] repeated text
`
	f := Parse(content, "plan.md")

	if len(f.Pending) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(f.Pending))
	}
	if f.Pending[0].Key() == f.Pending[1].Key() {
		t.Error("same text on different lines should produce distinct keys")
	}
	if f.Pending[0].Line >= f.Pending[1].Line {
		t.Errorf("lines not ascending: %d, %d", f.Pending[0].Line, f.Pending[1].Line)
	}
}

func TestNextPending(t *testing.T) {
	content := `- [ ] first
- [x] already done
- [ ] second
- [ ] third
`
	f := Parse(content, "plan.md")

	task, ok := f.NextPending(nil)
	if !ok || task.Text != "first" {
		t.Fatalf("NextPending(nil) = %q, %v; want first, true", task.Text, ok)
	}

	handled := map[string]bool{task.Key(): true}
	task, ok = f.NextPending(handled)
	if !ok || task.Text != "second" {
		t.Fatalf("NextPending = %q, %v; want second, true", task.Text, ok)
	}

	handled[task.Key()] = true
	task, ok = f.NextPending(handled)
	if !ok || task.Text != "third" {
		t.Fatalf("NextPending = %q, %v; want third, true", task.Text, ok)
	}

	handled[task.Key()] = true
	if _, ok := f.NextPending(handled); ok {
		t.Error("NextPending should report exhaustion when all tasks are handled")
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md")
	content := "# Plan\n\n- [ ] only task\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.Path != path {
		t.Errorf("path = %q, want %q", f.Path, path)
	}
	if f.Total != 1 {
		t.Errorf("total = %d, want 1", f.Total)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.md"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read task file") {
		t.Errorf("error = %v, want read failure context", err)
	}
}
