package verify

import (
	"context"
	"strings"
	"time"

	"github.com/visorcraft/anton/internal/taskfile"
)

// statusSource provides porcelain status output. *vcs.Tree satisfies
// it.
type statusSource interface {
	Status(ctx context.Context) (string, error)
}

// GitVerifier inspects the working tree after a task reports done,
// separating substantive changes from orchestrator metadata. It runs
// before the commit: its detail records what the commit will carry,
// or that the claimed work changed nothing.
type GitVerifier struct {
	tree     statusSource
	excluded []string
}

// NewGitVerifier creates a git verifier. stateDir is the repo-relative
// metadata directory whose changes never count as task work.
func NewGitVerifier(tree statusSource, stateDir string) *GitVerifier {
	var excluded []string
	if stateDir != "" {
		excluded = append(excluded, strings.TrimSuffix(stateDir, "/")+"/")
	}
	return &GitVerifier{tree: tree, excluded: excluded}
}

// Name returns "git".
func (v *GitVerifier) Name() string {
	return "git"
}

// Clean reports whether the working tree is clean once metadata
// changes are ignored, so orchestrator state under the excluded
// directories never blocks a run from starting.
func (v *GitVerifier) Clean(ctx context.Context) (bool, error) {
	status, err := v.tree.Status(ctx)
	if err != nil {
		return false, err
	}
	return v.filterExcluded(strings.TrimSpace(status)) == "", nil
}

// Verify reports the substantive working-tree changes the task left
// behind. A clean tree passes; an empty change set is a valid outcome
// here, not a failure. Only a git error fails the check.
func (v *GitVerifier) Verify(ctx context.Context, task taskfile.Task, sessionText string) *Outcome {
	start := time.Now()
	out := &Outcome{Verifier: v.Name()}

	status, err := v.tree.Status(ctx)
	out.Duration = time.Since(start)
	if err != nil {
		out.Err = err
		out.Detail = err.Error()
		return out
	}

	out.Passed = true
	filtered := v.filterExcluded(strings.TrimSpace(status))
	if filtered == "" {
		out.Detail = "working tree clean"
		return out
	}
	out.Detail = filtered
	return out
}

// filterExcluded removes status lines under excluded directories.
// Porcelain format is "XY PATH" with the path starting at column 4.
func (v *GitVerifier) filterExcluded(status string) string {
	if status == "" || len(v.excluded) == 0 {
		return status
	}

	var kept []string
	for _, line := range strings.Split(status, "\n") {
		if line == "" {
			continue
		}
		path := ""
		if len(line) > 3 {
			path = line[3:]
		}
		excluded := false
		for _, prefix := range v.excluded {
			if strings.HasPrefix(path, prefix) {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
