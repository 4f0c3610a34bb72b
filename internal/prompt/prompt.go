// Package prompt assembles the per-turn instruction sent to an agent
// session.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/visorcraft/anton/internal/knowledge"
	"github.com/visorcraft/anton/internal/taskfile"
)

// Searcher finds knowledge documents matching keywords.
type Searcher interface {
	Search(keywords []string) ([]knowledge.Entry, error)
}

// Context carries everything one turn's prompt is built from.
type Context struct {
	// Task is the task the agent should work on this turn.
	Task taskfile.Task

	// TaskFile is the path of the checklist document.
	TaskFile string

	// Done and Total are the completed and overall task counts shown
	// in the progress summary.
	Done  int
	Total int

	// Decompose offers the agent the option to split the task this
	// turn. The depth rule and the decompose result example appear
	// only when set.
	Decompose bool

	// MaxDepth is the decomposition depth limit named in the rules.
	MaxDepth int

	// RetryReason is the verbatim failure reason from the prior
	// attempt at this task; empty on a first attempt.
	RetryReason string

	// PlanFile points at the discovery notes written for this task,
	// when a discovery phase ran. Empty otherwise.
	PlanFile string
}

// Builder renders prompts and folds in retrieved knowledge.
type Builder struct {
	tmpl   *template.Template
	store  Searcher
	budget int
}

// NewBuilder creates a Builder. store may be nil to disable
// retrieval; budget caps retrieved content in estimated tokens.
func NewBuilder(store Searcher, budget int) *Builder {
	return &Builder{
		tmpl:   template.Must(template.New("prompt").Parse(promptTemplate)),
		store:  store,
		budget: budget,
	}
}

// Build renders the instruction for one agent turn.
func (b *Builder) Build(ctx Context) string {
	data := templateData{
		TaskFile:    ctx.TaskFile,
		Line:        ctx.Task.Line,
		Breadcrumb:  ctx.Task.Breadcrumb(),
		TaskText:    ctx.Task.Text,
		Children:    ctx.Task.Children,
		Done:        ctx.Done,
		Total:       ctx.Total,
		Phase:       ctx.Task.Phase(),
		Decompose:   ctx.Decompose,
		MaxDepth:    ctx.MaxDepth,
		Retrieved:   b.retrieve(ctx.Task.Text),
		RetryReason: ctx.RetryReason,
		PlanFile:    ctx.PlanFile,
	}

	var buf strings.Builder
	if err := b.tmpl.Execute(&buf, data); err != nil {
		// This should never happen with a valid template
		return fmt.Sprintf("Error generating prompt: %v", err)
	}
	return buf.String()
}

// retrieve searches the knowledge store with keywords from the task
// text and keeps hits, in relevance order, while they fit the token
// budget. Entries are never truncated; the first one that does not
// fit stops the append.
func (b *Builder) retrieve(taskText string) []retrievedDoc {
	if b.store == nil || b.budget <= 0 {
		return nil
	}
	keywords := Keywords(taskText)
	if len(keywords) == 0 {
		return nil
	}
	hits, err := b.store.Search(keywords)
	if err != nil || len(hits) == 0 {
		return nil
	}

	var docs []retrievedDoc
	used := 0
	for _, h := range hits {
		cost := EstimateTokens(h.Content)
		if used+cost > b.budget {
			break
		}
		used += cost
		docs = append(docs, retrievedDoc{ID: h.ID, Content: strings.TrimSpace(h.Content)})
	}
	return docs
}

// templateData holds the data passed to the prompt template.
type templateData struct {
	TaskFile    string
	Line        int
	Breadcrumb  string
	TaskText    string
	Children    []taskfile.Task
	Done        int
	Total       int
	Phase       string
	Decompose   bool
	MaxDepth    int
	Retrieved   []retrievedDoc
	RetryReason string
	PlanFile    string
}

type retrievedDoc struct {
	ID      string
	Content string
}

// promptTemplate is the Go template for generating task prompts.
const promptTemplate = `You are an autonomous coding agent working through a task checklist.

## Operating Rules

1. Work only on the current task below. Do not start other tasks.
2. You are unattended. Never ask questions; make reasonable decisions and note them in code comments or commit messages.
3. Keep the working tree buildable. Run the project's tests where they exist.
4. Keep changes scoped to what the task needs.
5. Never edit the checklist file or its checkboxes. Completion is tracked outside the document.
{{if .Decompose}}6. If the task is too large for one turn, report status decompose and list smaller subtasks. Decomposition may nest at most {{.MaxDepth}} level{{if ne .MaxDepth 1}}s{{end}} deep, so prefer subtasks completable in a single turn.
{{end}}
## Current Task

File: {{.TaskFile}}:{{.Line}}
{{if .Breadcrumb}}Phase: {{.Breadcrumb}}
{{end}}Task: {{.TaskText}}
{{if .Children}}
Known subtasks:
{{range .Children}}- [{{if .Checked}}x{{else}} {{end}}] {{.Text}}
{{end}}{{end}}
## Progress

{{.Done}} of {{.Total}} tasks complete.{{if .Phase}} Current phase: {{.Phase}}.{{end}}
{{if .PlanFile}}
## Plan

Discovery notes for this task were written to {{.PlanFile}}. Read them
before starting and follow the plan unless it is clearly wrong.
{{end}}{{if .Retrieved}}
## Retrieved Context

Notes from the project knowledge store that may be relevant:
{{range .Retrieved}}
### {{.ID}}

{{.Content}}
{{end}}{{end}}{{if .RetryReason}}
## Previous Attempt

The last attempt at this task failed:

    {{.RetryReason}}

Do not repeat that approach. Address the failure or take a different route.
{{end}}
## Reporting

End your reply with a fenced result block. When the task is complete:

` + "```anton-result" + `
status: done
` + "```" + `

When you cannot finish, report why:

` + "```anton-result" + `
status: blocked
reason: what is missing or broken
` + "```" + `
{{if .Decompose}}
To split the task instead, list each subtask on a dash line:

` + "```anton-result" + `
status: decompose
reason: why the task needs splitting
- first smaller task
- second smaller task
` + "```" + `
{{end}}
Only the last ` + "`anton-result`" + ` block in your reply is read. Begin working on the task now.
`
