package verify

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/visorcraft/anton/internal/result"
	"github.com/visorcraft/anton/internal/session"
	"github.com/visorcraft/anton/internal/taskfile"
)

// patchSource provides the last commit's patch. *vcs.Tree satisfies
// it.
type patchSource interface {
	LastCommit(ctx context.Context) (string, error)
}

// Patch and notes caps keep review prompts inside a sane context
// size. Truncation is marked so the reviewer knows.
const (
	maxReviewPatchBytes = 32 * 1024
	maxReviewNotesBytes = 4 * 1024
)

// ReviewVerifier asks a restricted agent session to accept or reject
// the commit a task just produced. A rejection reason feeds the
// task's retry prompt; any non-accepting verdict rejects.
type ReviewVerifier struct {
	session session.Session
	patches patchSource
	tmpl    *template.Template
}

// NewReviewVerifier creates a review verifier. The session should be
// a review-kind session: read access everywhere, writes confined to
// the plan directory.
func NewReviewVerifier(sess session.Session, patches patchSource) *ReviewVerifier {
	return &ReviewVerifier{
		session: sess,
		patches: patches,
		tmpl:    template.Must(template.New("review").Parse(reviewTemplate)),
	}
}

// Name returns "review".
func (v *ReviewVerifier) Name() string {
	return "review"
}

// Verify shows the reviewer the last commit and the agent's closing
// notes, then maps the verdict block onto the outcome. A reply
// without a readable verdict rejects, so a broken review run never
// silently accepts work.
func (v *ReviewVerifier) Verify(ctx context.Context, task taskfile.Task, sessionText string) *Outcome {
	start := time.Now()
	out := &Outcome{Verifier: v.Name()}
	defer func() { out.Duration = time.Since(start) }()

	patch, err := v.patches.LastCommit(ctx)
	if err != nil {
		out.Err = err
		out.Detail = err.Error()
		return out
	}
	if strings.TrimSpace(patch) == "" {
		out.Passed = true
		out.Detail = "no commit to review"
		return out
	}

	reply, err := v.session.Ask(ctx, v.buildPrompt(task, patch, sessionText))
	if err != nil {
		out.Err = err
		out.Detail = fmt.Sprintf("review session failed: %v", err)
		return out
	}

	verdict := result.Parse(reply.Text)
	if verdict.Status == result.StatusDone {
		out.Passed = true
		out.Detail = "change accepted"
		return out
	}
	if verdict.Malformed {
		out.Detail = "review reply carried no verdict"
		return out
	}
	out.Detail = verdict.Reason
	if out.Detail == "" {
		out.Detail = "review rejected the change"
	}
	return out
}

type reviewData struct {
	Task  string
	Patch string
	Notes string
}

func (v *ReviewVerifier) buildPrompt(task taskfile.Task, patch, notes string) string {
	data := reviewData{
		Task:  task.Text,
		Patch: truncate(strings.TrimSpace(patch), maxReviewPatchBytes),
		Notes: truncate(strings.TrimSpace(notes), maxReviewNotesBytes),
	}
	if crumb := task.Breadcrumb(); crumb != "" {
		data.Task = crumb + " > " + task.Text
	}

	var sb strings.Builder
	if err := v.tmpl.Execute(&sb, data); err != nil {
		// This should never happen with a valid template.
		return fmt.Sprintf("Error generating review prompt: %v", err)
	}
	return sb.String()
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "\n[truncated]"
}

const reviewTemplate = `You are reviewing a change that an automated coding agent just
committed. Decide whether the commit correctly implements the task.

## Task

{{.Task}}

## Commit

` + "```diff" + `
{{.Patch}}
` + "```" + `
{{if .Notes}}
## Agent Notes

{{.Notes}}
{{end}}
Accept the commit only if it implements the task without obvious
defects. Reply with exactly one fenced block:

` + "```" + result.BlockTag + `
status: done
` + "```" + `

to accept, or

` + "```" + result.BlockTag + `
status: blocked
reason: <what is wrong, in one or two sentences>
` + "```" + `

to reject. Do not modify any files outside your plan directory.`
