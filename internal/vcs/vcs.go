// Package vcs keeps the working tree recoverable across agent turns:
// a clean-tree precondition before a run, per-task commits, and
// rollback of failed attempts.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/visorcraft/anton/internal/logging"
)

// DefaultTimeout bounds a single git call when no timeout is
// configured.
const DefaultTimeout = time.Minute

// Runner executes git with fixed argument lists. ctx carries the
// per-call timeout.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// CLIRunner runs the real git binary.
type CLIRunner struct{}

// Run executes git in dir and returns its stdout. On failure the
// error carries the trimmed stderr.
func (CLIRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.String(), fmt.Errorf("git %s timed out: %w", args[0], ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("git %s failed: %s: %w", args[0], detail, err)
	}
	return stdout.String(), nil
}

// Tree wraps the git operations the orchestrator needs, each bounded
// by an explicit timeout. Calls are serialized by the run lock; there
// is no locking at this layer.
type Tree struct {
	dir     string
	timeout time.Duration
	git     Runner
	logger  *logging.Logger
}

// NewTree creates a safety net for the repository at dir.
func NewTree(dir string, timeout time.Duration, logger *logging.Logger) *Tree {
	return NewTreeWithRunner(dir, timeout, logger, CLIRunner{})
}

// NewTreeWithRunner is NewTree with a custom git runner.
func NewTreeWithRunner(dir string, timeout time.Duration, logger *logging.Logger, git Runner) *Tree {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tree{dir: dir, timeout: timeout, git: git, logger: logger}
}

// IsClean reports whether the working tree has no pending changes.
func (t *Tree) IsClean(ctx context.Context) (bool, error) {
	out, err := t.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

// Status returns the porcelain status of the working tree.
func (t *Tree) Status(ctx context.Context) (string, error) {
	return t.run(ctx, "status", "--porcelain")
}

// Diff returns the combined diff of the working tree against HEAD.
func (t *Tree) Diff(ctx context.Context) (string, error) {
	return t.run(ctx, "diff", "HEAD")
}

// LastCommit returns the patch of the most recent commit.
func (t *Tree) LastCommit(ctx context.Context) (string, error) {
	return t.run(ctx, "show", "--no-color", "HEAD")
}

// CommitAll stages everything and commits with message, returning the
// new commit hash. An empty hash with a nil error means there was
// nothing to commit; that is a valid outcome, not a failure.
func (t *Tree) CommitAll(ctx context.Context, message string) (string, error) {
	if _, err := t.run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	out, err := t.run(ctx, "commit", "-m", message)
	if err != nil {
		if nothingToCommit(out, err) {
			return "", nil
		}
		return "", err
	}
	return t.Head(ctx)
}

// Rollback reverts tracked-file changes and deletes untracked files,
// leaving the tree at the last commit.
func (t *Tree) Rollback(ctx context.Context) error {
	if _, err := t.run(ctx, "checkout", "--", "."); err != nil {
		return err
	}
	_, err := t.run(ctx, "clean", "-fd")
	return err
}

// Amend folds the current changes into the most recent commit without
// editing its message, returning the rewritten hash.
func (t *Tree) Amend(ctx context.Context) (string, error) {
	if _, err := t.run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := t.run(ctx, "commit", "--amend", "--no-edit"); err != nil {
		return "", err
	}
	return t.Head(ctx)
}

// Head returns the current commit hash.
func (t *Tree) Head(ctx context.Context) (string, error) {
	out, err := t.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (t *Tree) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	t.logger.Debug("git", "args", strings.Join(args, " "))
	return t.git.Run(ctx, t.dir, args...)
}

// nothingToCommit recognizes git's clean-tree commit refusal, which
// exits nonzero but is not a failure for our purposes.
func nothingToCommit(out string, err error) bool {
	text := out
	if err != nil {
		text += err.Error()
	}
	return strings.Contains(text, "nothing to commit") ||
		strings.Contains(text, "nothing added to commit")
}
