// Package taskfile parses a markdown checklist into the ordered task
// tree a run executes: headings delimit phases, checkbox list items are
// tasks, and more-indented checkbox items become children of the
// enclosing task. The document is read-only input; completion state in
// the file is informational and never written back.
package taskfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	headingRe  = regexp.MustCompile(`^(#+)\s+(.+?)\s*$`)
	checkboxRe = regexp.MustCompile(`^(\s*)[-*+]\s+\[([ xX])\]\s+(.+?)\s*$`)
)

// Task is a single checklist item. Identity is the (Line, Text) pair,
// which is stable across re-parses of an unmodified document.
type Task struct {
	// Text is the checklist item text with the checkbox marker stripped.
	Text string
	// Line is the 1-based source line the item appears on.
	Line int
	// Checked reports the checkbox state as written in the document.
	Checked bool
	// Phases is the ordered breadcrumb of ancestor headings.
	Phases []string
	// Children are nested checklist items, in declaration order.
	Children []Task
}

// Key returns the task's identity, stable across re-parses of an
// unmodified file.
func (t Task) Key() string {
	return fmt.Sprintf("%d:%s", t.Line, t.Text)
}

// Phase returns the innermost enclosing heading, or "" at top level.
func (t Task) Phase() string {
	if len(t.Phases) == 0 {
		return ""
	}
	return t.Phases[len(t.Phases)-1]
}

// Breadcrumb joins the phase headings with an arrow separator.
func (t Task) Breadcrumb() string {
	return strings.Join(t.Phases, " > ")
}

// File is a parsed task document. Pending and Completed are flat,
// depth-first-ordered lists over all items including subtasks; a parent
// with fully checked children still counts as pending until its own box
// is checked.
type File struct {
	Path      string
	Pending   []Task
	Completed []Task
	Total     int
}

// Load reads and parses the task document at path. An unreadable file
// is an error; parse itself never fails.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	return Parse(string(data), path), nil
}

type phaseFrame struct {
	level int
	title string
}

// Parse scans a checklist document. It is a pure function of content:
// re-parsing an unchanged document yields identically-keyed tasks.
func Parse(content, path string) *File {
	f := &File{Path: path}

	var phases []phaseFrame
	var tasks []Task // top-level tasks in document order
	var last *Task   // most recent top-level task, nil after a heading
	lastIndent := 0
	inFence := false

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			for len(phases) > 0 && phases[len(phases)-1].level >= level {
				phases = phases[:len(phases)-1]
			}
			phases = append(phases, phaseFrame{level: level, title: m[2]})
			last = nil
			continue
		}

		m := checkboxRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		indent := indentWidth(m[1])
		task := Task{
			Text:    m[3],
			Line:    i + 1,
			Checked: m[2] == "x" || m[2] == "X",
			Phases:  breadcrumb(phases),
		}

		if last != nil && indent > lastIndent {
			last.Children = append(last.Children, task)
			continue
		}

		tasks = append(tasks, task)
		last = &tasks[len(tasks)-1]
		lastIndent = indent
	}

	// Flatten depth-first: each parent before its children, subtasks
	// counted independently.
	for _, t := range tasks {
		f.add(t)
		for _, c := range t.Children {
			f.add(c)
		}
	}
	return f
}

func (f *File) add(t Task) {
	f.Total++
	if t.Checked {
		f.Completed = append(f.Completed, t)
	} else {
		f.Pending = append(f.Pending, t)
	}
}

// NextPending returns the first pending task whose key is not in
// handled, following document order: phase order, then declaration
// order, subtasks after their parent.
func (f *File) NextPending(handled map[string]bool) (Task, bool) {
	for _, t := range f.Pending {
		if handled[t.Key()] {
			continue
		}
		return t, true
	}
	return Task{}, false
}

func breadcrumb(frames []phaseFrame) []string {
	if len(frames) == 0 {
		return nil
	}
	out := make([]string, len(frames))
	for i, fr := range frames {
		out[i] = fr.title
	}
	return out
}

func indentWidth(s string) int {
	width := 0
	for _, r := range s {
		if r == '\t' {
			width += 4
		} else {
			width++
		}
	}
	return width
}
