// Package verify checks the work a completed task produced, before
// and after it is committed.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/visorcraft/anton/internal/taskfile"
)

// Verifier checks the work recorded for a task.
type Verifier interface {
	// Name returns a short identifier such as "git" or "review".
	Name() string

	// Verify inspects the work done for task. sessionText is the
	// agent's final reply, available to verifiers that want it for
	// context.
	Verify(ctx context.Context, task taskfile.Task, sessionText string) *Outcome
}

// Outcome is a single verifier's verdict.
type Outcome struct {
	// Verifier is the name of the verifier that produced this.
	Verifier string

	// Passed reports whether the check accepted the work.
	Passed bool

	// Detail carries the verifier's findings. For a rejection it is
	// the reason, suitable for a retry prompt.
	Detail string

	// Duration is how long the check took.
	Duration time.Duration

	// Err holds the underlying error when the check itself failed.
	Err error
}

// String returns a one-line summary of the outcome.
func (o *Outcome) String() string {
	status := "PASS"
	if !o.Passed {
		status = "FAIL"
	}
	return fmt.Sprintf("[%s] %s (%v)", status, o.Verifier, o.Duration.Round(time.Millisecond))
}

// Outcomes aggregates the verdicts of one verification pass.
type Outcomes struct {
	All    []*Outcome
	Passed bool
}

// Collect builds an Outcomes from individual verdicts, computing the
// combined result.
func Collect(outcomes []*Outcome) *Outcomes {
	passed := true
	for _, o := range outcomes {
		if !o.Passed {
			passed = false
			break
		}
	}
	return &Outcomes{All: outcomes, Passed: passed}
}

// RejectReason returns the first failing outcome's detail. Empty when
// everything passed.
func (s *Outcomes) RejectReason() string {
	for _, o := range s.All {
		if !o.Passed && o.Detail != "" {
			return o.Detail
		}
	}
	return ""
}

// Summary returns a human-readable account of all outcomes, with
// failing details indented beneath their line.
func (s *Outcomes) Summary() string {
	if len(s.All) == 0 {
		return "no verifications run"
	}

	var sb strings.Builder
	passed := 0
	for _, o := range s.All {
		if o.Passed {
			passed++
		}
	}

	if s.Passed {
		sb.WriteString(fmt.Sprintf("verification passed (%d/%d)\n", passed, len(s.All)))
	} else {
		sb.WriteString(fmt.Sprintf("verification failed (%d/%d passed)\n", passed, len(s.All)))
	}

	for _, o := range s.All {
		sb.WriteString("  " + o.String() + "\n")
		if !o.Passed && o.Detail != "" {
			for _, line := range strings.Split(strings.TrimSpace(o.Detail), "\n") {
				sb.WriteString("    " + line + "\n")
			}
		}
	}

	return strings.TrimSuffix(sb.String(), "\n")
}
