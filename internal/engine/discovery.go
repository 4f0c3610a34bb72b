package engine

import (
	"strings"
	"text/template"

	"github.com/visorcraft/anton/internal/result"
	"github.com/visorcraft/anton/internal/taskfile"
)

// phaseData carries what the discovery and plan-review prompts need.
type phaseData struct {
	Task        string
	PlanFile    string
	RetryReason string
}

func phaseTask(task taskfile.Task) string {
	if len(task.Phases) > 0 {
		return strings.Join(task.Phases, " > ") + " > " + task.Text
	}
	return task.Text
}

// discoveryPrompt asks the restricted discovery session to investigate
// a task and leave a plan under the plan directory.
func discoveryPrompt(task taskfile.Task, planFile, retryReason string) string {
	var b strings.Builder
	_ = discoveryTmpl.Execute(&b, phaseData{
		Task:        phaseTask(task),
		PlanFile:    planFile,
		RetryReason: retryReason,
	})
	return b.String()
}

// planReviewPrompt asks the restricted review session to judge the
// discovery notes before implementation starts.
func planReviewPrompt(task taskfile.Task, planFile string) string {
	var b strings.Builder
	_ = planReviewTmpl.Execute(&b, phaseData{
		Task:     phaseTask(task),
		PlanFile: planFile,
	})
	return b.String()
}

var discoveryTmpl = template.Must(template.New("discovery").Parse(discoveryTemplate))

var planReviewTmpl = template.Must(template.New("planreview").Parse(planReviewTemplate))

const discoveryTemplate = `You are running a discovery pass before another agent implements a
checklist task. Investigate the repository, then write a short plan.

## Rules

1. Read anything you need, but write only inside your plan directory.
2. Write your findings to {{.PlanFile}}: the files involved, the
   approach, known risks, and the concrete steps to take.
3. Do not implement the task and do not edit the checklist.

## Task

{{.Task}}
{{if .RetryReason}}
## Previous Attempt

The last attempt at this task failed:

    {{.RetryReason}}

Make the plan address that failure directly.
{{end}}
## Reporting

End your reply with a fenced result block. When the plan is written:

` + "```" + result.BlockTag + `
status: done
` + "```" + `

When you cannot produce a useful plan, report why:

` + "```" + result.BlockTag + `
status: blocked
reason: what is missing or unclear
` + "```" + `
`

const planReviewTemplate = `You are reviewing the discovery notes another agent wrote for a
checklist task, before implementation starts.

## Task

{{.Task}}

## Review

Read {{.PlanFile}}. Accept the plan when it names the files involved
and gives concrete steps an agent could follow unattended. Reject it
when it is missing, vague, or solves the wrong problem. You may edit
files inside your plan directory; nothing else.

## Reporting

End your reply with a fenced result block. To accept:

` + "```" + result.BlockTag + `
status: done
` + "```" + `

To reject:

` + "```" + result.BlockTag + `
status: blocked
reason: what the plan is missing
` + "```" + `
`
