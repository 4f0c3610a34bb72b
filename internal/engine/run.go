package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/visorcraft/anton/internal/config"
	"github.com/visorcraft/anton/internal/logging"
	"github.com/visorcraft/anton/internal/progress"
	"github.com/visorcraft/anton/internal/prompt"
	"github.com/visorcraft/anton/internal/report"
	"github.com/visorcraft/anton/internal/result"
	"github.com/visorcraft/anton/internal/session"
	"github.com/visorcraft/anton/internal/taskfile"
	"github.com/visorcraft/anton/internal/verify"
)

// workItem is one unit of pending work: a task from the document or a
// subtask substituted by a decomposition.
type workItem struct {
	task   taskfile.Task
	depth  int
	parent *decomposition
}

// decomposition tracks a parent task while its substituted subtasks
// run. The parent resolves only after its last subtask does.
type decomposition struct {
	item      workItem
	remaining int
	failedWhy string
	attempts  int
	startedAt time.Time
}

// runOutcome is how a whole run ended.
type runOutcome struct {
	reason  string
	stopped bool
	failed  bool
}

// taskKind classifies how one work item ended. taskRetry is internal
// to the attempt loop and never escapes runTask.
type taskKind int

const (
	taskRetry taskKind = iota
	taskDone
	taskSkipped
	taskFailed
	taskDecomposed
	taskAbort
	taskStopped
)

// taskOutcome is the result of driving one work item.
type taskOutcome struct {
	kind      taskKind
	reason    string
	subtasks  []taskfile.Task
	attempts  int
	startedAt time.Time
}

// runState is the single-goroutine bookkeeping of one run.
type runState struct {
	log      *logging.Logger
	file     *taskfile.File
	summary  *report.RunSummary
	deadline time.Time
	handled  map[string]bool
	queue    []workItem
}

// run executes one full run: preflight, lock, parse, then the task
// loop. It always leaves a final event and a run report behind.
func (e *Engine) run(ctx context.Context, taskFilePath string) error {
	runID := report.NewRunID()
	log := e.logger.WithRun(runID)
	log.Info("run starting", "task_file", taskFilePath)
	if e.cfg.Run.Manual() {
		log.Info("manual approval mode: changes stay uncommitted for review")
	}

	summary := report.NewRunSummary(runID, taskFilePath, 0)

	e.events.Publish(progress.StageEvent{Stage: progress.StagePreflight})

	// The tree must be clean before the lock is even touched. State
	// under the metadata directory does not count.
	clean, err := e.gitCheck.Clean(ctx)
	if err != nil {
		return e.finish(log, summary, runOutcome{failed: true, reason: fmt.Sprintf("git status failed: %v", err)})
	}
	if !clean {
		return e.finish(log, summary, runOutcome{failed: true, reason: "working tree has uncommitted changes; commit or stash them first"})
	}

	lock, err := e.locks.Acquire(taskFilePath)
	if err != nil {
		return e.finish(log, summary, runOutcome{failed: true, reason: err.Error()})
	}
	defer func() { _ = lock.Release() }()

	e.events.Publish(progress.StageEvent{Stage: progress.StagePlanning})

	file, err := taskfile.Load(taskFilePath)
	if err != nil {
		return e.finish(log, summary, runOutcome{failed: true, reason: err.Error()})
	}
	summary.Total = file.Total

	e.mu.Lock()
	e.counters.base = len(file.Completed)
	e.counters.total = len(file.Pending)
	e.mu.Unlock()
	log.Info("task file parsed", "pending", len(file.Pending), "total", file.Total)

	// The run correlates work by (line, text) pairs captured at parse
	// time; a mid-run edit breaks that mapping, so it only warns.
	watcher, werr := taskfile.Watch(taskFilePath, log, func() {
		log.Warn("task file changed mid-run; this run keeps working from the version it parsed")
	})
	if werr != nil {
		log.Warn("task file watcher unavailable", "error", werr)
	} else {
		defer func() { _ = watcher.Close() }()
	}

	if e.cfg.Progress.Events {
		if interval := e.cfg.Progress.HeartbeatInterval(); interval > 0 {
			hb := progress.StartHeartbeat(interval, e.progressSnapshot, e.events)
			defer hb.Stop()
		}
	}

	e.events.Publish(progress.StageEvent{Stage: progress.StageExecuting})

	rs := &runState{
		log:     log,
		file:    file,
		summary: summary,
		handled: make(map[string]bool),
	}
	if total := e.cfg.Run.TotalTimeout(); total > 0 {
		rs.deadline = time.Now().Add(total)
	}

	return e.finish(log, summary, e.loop(ctx, rs))
}

// loop drains pending work in document order, with decomposed
// subtasks substituted in place of their parent.
func (e *Engine) loop(ctx context.Context, rs *runState) runOutcome {
	for {
		if e.stopping() {
			return runOutcome{stopped: true, reason: "stopped by request"}
		}
		if ctx.Err() != nil {
			return runOutcome{failed: true, reason: "run cancelled"}
		}
		if reason := e.pastDeadline(rs); reason != "" {
			return runOutcome{failed: true, reason: reason}
		}

		var item workItem
		if len(rs.queue) > 0 {
			item, rs.queue = rs.queue[0], rs.queue[1:]
		} else if task, ok := rs.file.NextPending(rs.handled); ok {
			rs.handled[task.Key()] = true
			item = workItem{task: task}
		} else {
			return runOutcome{reason: "all pending tasks handled"}
		}

		out := e.runTask(ctx, rs, item)
		switch out.kind {
		case taskStopped:
			e.cleanupStop(rs.log)
			return runOutcome{stopped: true, reason: "stopped by request"}
		case taskAbort:
			return runOutcome{failed: true, reason: out.reason}
		case taskDecomposed:
			dec := &decomposition{
				item:      item,
				remaining: len(out.subtasks),
				attempts:  out.attempts,
				startedAt: out.startedAt,
			}
			subs := make([]workItem, len(out.subtasks))
			for i, sub := range out.subtasks {
				subs[i] = workItem{task: sub, depth: item.depth + 1, parent: dec}
			}
			rs.queue = append(subs, rs.queue...)
			continue
		}

		if item.parent != nil {
			if abort := e.resolveSubtask(rs, item, out); abort != nil {
				return *abort
			}
		}
	}
}

// resolveSubtask folds a finished subtask into its decomposition and,
// once the last one lands, resolves the parent chain. Non-nil return
// aborts the run.
func (e *Engine) resolveSubtask(rs *runState, item workItem, out taskOutcome) *runOutcome {
	dec := item.parent
	dec.remaining--
	if out.kind != taskDone && dec.failedWhy == "" {
		dec.failedWhy = fmt.Sprintf("subtask %q did not complete: %s", item.task.Text, out.reason)
	}
	if dec.remaining > 0 {
		return nil
	}

	for dec != nil {
		parentItem := dec.item
		if dec.failedWhy == "" {
			rs.log.Info("decomposed task complete", "task", parentItem.task.Text)
			e.recordDone(rs.summary, parentItem.task, "", dec.attempts, time.Since(dec.startedAt))
		} else if e.cfg.Run.SkipOnBlocked {
			rs.log.Warn("decomposed task skipped", "task", parentItem.task.Text, "reason", dec.failedWhy)
			e.recordSkipped(rs.summary, parentItem.task, dec.failedWhy, dec.attempts, time.Since(dec.startedAt))
		} else {
			e.recordFailed(rs.summary, parentItem.task, dec.failedWhy, dec.attempts, time.Since(dec.startedAt))
			return &runOutcome{failed: true, reason: fmt.Sprintf("task %q blocked: %s", parentItem.task.Text, dec.failedWhy)}
		}

		up := parentItem.parent
		if up == nil {
			return nil
		}
		up.remaining--
		if dec.failedWhy != "" && up.failedWhy == "" {
			up.failedWhy = fmt.Sprintf("subtask %q did not complete: %s", parentItem.task.Text, dec.failedWhy)
		}
		if up.remaining > 0 {
			return nil
		}
		dec = up
	}
	return nil
}

// runTask drives one work item to an outcome, spending up to the
// retry budget across discovery, implementation and verification.
func (e *Engine) runTask(ctx context.Context, rs *runState, item workItem) taskOutcome {
	task := item.task
	tlog := rs.log.WithTask(task.Line)
	out := taskOutcome{startedAt: time.Now()}

	maxAttempts := e.cfg.Run.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	allowDecompose := e.cfg.Run.Decompose && item.depth < e.cfg.Run.MaxDecomposeDepth

	e.events.Publish(progress.TaskEvent{Action: progress.TaskStart, Text: task.Text})
	tlog.Info("task starting", "task", task.Text, "depth", item.depth)

	retryReason := ""
	committed := ""
	discovered := false
	blockedLast := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.attempts = attempt
		e.setCurrent(task.Text, attempt)

		if attempt > 1 {
			if e.stopping() {
				out.kind = taskStopped
				return out
			}
			if reason := e.pastDeadline(rs); reason != "" {
				e.recordFailed(rs.summary, task, retryReason, attempt-1, time.Since(out.startedAt))
				out.kind, out.reason = taskAbort, reason
				return out
			}
			tlog.Info("retrying task", "attempt", attempt, "reason", retryReason)
		}
		blockedLast = false

		planFile := ""
		if e.cfg.Discovery.Enabled {
			planFile = e.planPath(task)
			if !discovered {
				failReason, derr := e.discover(ctx, tlog, rs.summary, task, planFile, retryReason)
				if derr != nil {
					out.kind = e.interruptKind()
					out.reason = "run cancelled"
					return out
				}
				if failReason != "" {
					if abort := e.failAttempt(ctx, tlog, failReason); abort != "" {
						e.recordFailed(rs.summary, task, failReason, attempt, time.Since(out.startedAt))
						out.kind, out.reason = taskAbort, abort
						return out
					}
					retryReason = failReason
					continue
				}
				discovered = true
			}
		}

		done, total := e.documentProgress()
		turnPrompt := e.prompts.Build(prompt.Context{
			Task:        task,
			TaskFile:    rs.file.Path,
			Done:        done,
			Total:       total,
			Decompose:   allowDecompose,
			MaxDepth:    e.cfg.Run.MaxDecomposeDepth,
			RetryReason: retryReason,
			PlanFile:    planFile,
		})

		tlog.Debug("implementation turn", "attempt", attempt)
		reply, err := e.sessions.Implementation().Ask(ctx, turnPrompt)
		if err != nil {
			if errors.Is(err, session.ErrTurnCancelled) {
				out.kind = e.interruptKind()
				out.reason = "run cancelled"
				return out
			}
			if errors.Is(err, session.ErrToolLoop) {
				e.noteLoop(rs.summary, task.Text, false, err.Error())
			}
			reason := err.Error()
			if abort := e.failAttempt(ctx, tlog, reason); abort != "" {
				e.recordFailed(rs.summary, task, reason, attempt, time.Since(out.startedAt))
				out.kind, out.reason = taskAbort, abort
				return out
			}
			retryReason = reason
			continue
		}

		if reply.Loop != nil {
			e.noteLoop(rs.summary, task.Text, reply.Loop.Recovered, reply.Loop.Detail)
		}

		res := result.Parse(reply.Text)
		if res.Malformed {
			tlog.Warn("agent reply carried no usable result block", "diagnostic", res.Reason)
		}

		switch res.Status {
		case result.StatusDone:
			hash, reject, verr := e.acceptDone(ctx, tlog, task, reply.Text, committed != "")
			if verr != nil {
				e.recordFailed(rs.summary, task, verr.Error(), attempt, time.Since(out.startedAt))
				out.kind, out.reason = taskAbort, verr.Error()
				return out
			}
			if hash != "" {
				committed = hash
			}
			if reject != "" {
				reason := "review rejected the change: " + reject
				if abort := e.failAttempt(ctx, tlog, reason); abort != "" {
					e.recordFailed(rs.summary, task, reason, attempt, time.Since(out.startedAt))
					out.kind, out.reason = taskAbort, abort
					return out
				}
				retryReason = reason
				continue
			}
			e.recordDone(rs.summary, task, committed, attempt, time.Since(out.startedAt))
			out.kind = taskDone
			return out

		case result.StatusDecompose:
			if allowDecompose && len(res.Subtasks) > 0 {
				subs := make([]taskfile.Task, len(res.Subtasks))
				for i, text := range res.Subtasks {
					subs[i] = taskfile.Task{Text: text, Line: task.Line, Phases: task.Phases}
				}
				tlog.Info("task decomposed", "subtasks", len(subs), "reason", res.Reason)
				e.events.Publish(progress.TaskEvent{
					Action: progress.TaskDecomposed,
					Text:   task.Text,
					Reason: fmt.Sprintf("%d subtasks", len(subs)),
				})
				e.addTotal(len(subs))
				out.kind = taskDecomposed
				out.subtasks = subs
				return out
			}
			reason := res.Reason
			switch {
			case !e.cfg.Run.Decompose:
				reason = "decomposition requested but disabled"
			case item.depth >= e.cfg.Run.MaxDecomposeDepth:
				reason = fmt.Sprintf("decomposition depth limit %d reached", e.cfg.Run.MaxDecomposeDepth)
			case len(res.Subtasks) == 0:
				reason = "decomposition requested without subtasks"
			}
			blockedLast = true
			kind, abortReason := e.blockTask(ctx, tlog, rs.summary, task, reason, attempt, out.startedAt)
			if kind != taskRetry {
				out.kind, out.reason = kind, abortReason
				return out
			}
			retryReason = reason

		case result.StatusBlocked:
			reason := res.Reason
			if reason == "" {
				reason = "agent reported blocked without a reason"
			}
			blockedLast = true
			kind, abortReason := e.blockTask(ctx, tlog, rs.summary, task, reason, attempt, out.startedAt)
			if kind != taskRetry {
				out.kind, out.reason = kind, abortReason
				return out
			}
			retryReason = reason
		}
	}

	// Retry budget exhausted.
	reason := retryReason
	if reason == "" {
		reason = "retry budget exhausted"
	}
	e.recordFailed(rs.summary, task, reason, maxAttempts, time.Since(out.startedAt))
	if blockedLast || !e.cfg.Run.SkipOnFail {
		out.kind = taskAbort
		out.reason = fmt.Sprintf("task %q did not complete: %s", task.Text, reason)
		return out
	}
	tlog.Warn("task failed; moving on", "task", task.Text, "attempts", maxAttempts, "reason", reason)
	out.kind, out.reason = taskFailed, reason
	return out
}

// blockTask applies the blocked policy to the current attempt.
// taskRetry means the caller should try again; taskSkipped and
// taskAbort are final. The abort reason rides in the second return.
func (e *Engine) blockTask(ctx context.Context, log *logging.Logger, summary *report.RunSummary, task taskfile.Task, reason string, attempt int, startedAt time.Time) (taskKind, string) {
	log.Warn("task blocked", "reason", reason)

	if abort := e.failAttempt(ctx, log, reason); abort != "" {
		e.recordFailed(summary, task, reason, attempt, time.Since(startedAt))
		return taskAbort, abort
	}
	if e.cfg.Run.SkipOnBlocked {
		e.recordSkipped(summary, task, reason, attempt, time.Since(startedAt))
		return taskSkipped, reason
	}
	return taskRetry, ""
}

// discover runs the discovery sub-session and the optional plan
// review, leaving findings under the plan directory. A non-empty
// first return is the attempt's failure reason; the error return is
// reserved for cancellation.
func (e *Engine) discover(ctx context.Context, log *logging.Logger, summary *report.RunSummary, task taskfile.Task, planFile, retryReason string) (string, error) {
	log.Info("discovery phase", "plan_file", planFile)

	// The session's write roots confine discovery to the plan
	// directory; comparing tree state around the turn catches
	// anything that slips past them.
	wasClean := false
	if clean, cerr := e.gitCheck.Clean(ctx); cerr == nil {
		wasClean = clean
	}

	reply, err := e.sessions.Discovery().Ask(ctx, discoveryPrompt(task, planFile, retryReason))
	if err != nil {
		if errors.Is(err, session.ErrTurnCancelled) {
			return "", err
		}
		return fmt.Sprintf("discovery failed: %v", err), nil
	}
	if reply.Loop != nil {
		e.noteLoop(summary, task.Text, reply.Loop.Recovered, reply.Loop.Detail)
	}
	if wasClean {
		if clean, cerr := e.gitCheck.Clean(ctx); cerr == nil && !clean {
			if e.cfg.Run.ScopeGuard == config.ScopeGuardStrict {
				return "discovery wrote outside the plan directory", nil
			}
			log.Warn("discovery wrote outside the plan directory", "scope_guard", e.cfg.Run.ScopeGuard)
		}
	}
	res := result.Parse(reply.Text)
	if res.Status != result.StatusDone {
		reason := res.Reason
		if reason == "" {
			reason = "discovery produced no findings"
		}
		return "discovery blocked: " + reason, nil
	}

	if !e.cfg.Discovery.Review {
		return "", nil
	}
	log.Info("plan review phase", "plan_file", planFile)
	reply, err = e.sessions.Review().Ask(ctx, planReviewPrompt(task, planFile))
	if err != nil {
		if errors.Is(err, session.ErrTurnCancelled) {
			return "", err
		}
		return fmt.Sprintf("plan review failed: %v", err), nil
	}
	res = result.Parse(reply.Text)
	if res.Status != result.StatusDone {
		reason := res.Reason
		if reason == "" {
			reason = "plan review rejected the findings"
		}
		return "plan review rejected: " + reason, nil
	}
	return "", nil
}

// acceptDone verifies and commits work after a done result. It
// returns the commit hash (empty when nothing changed), a rejection
// reason when review turned the work back, and an error only for
// run-level version-control failures.
func (e *Engine) acceptDone(ctx context.Context, log *logging.Logger, task taskfile.Task, sessionText string, amend bool) (string, string, error) {
	check := e.gitCheck.Verify(ctx, task, sessionText)
	if check.Err != nil {
		return "", "", fmt.Errorf("git verification failed: %w", check.Err)
	}
	outcomes := []*verify.Outcome{check}

	hash := ""
	switch {
	case e.cfg.Run.Manual():
		log.Info("leaving changes uncommitted for review", "task", task.Text)
	case e.cfg.Commit.Auto:
		var err error
		if amend {
			hash, err = e.tree.Amend(ctx)
		} else {
			hash, err = e.tree.CommitAll(ctx, commitMessage(task))
		}
		if err != nil {
			return "", "", fmt.Errorf("commit failed: %w", err)
		}
		if hash != "" {
			log.Info("changes committed", "commit", hash, "amend", amend)
		} else {
			log.Info("nothing to commit", "task", task.Text)
		}
	}

	if e.cfg.Commit.Verify && hash != "" {
		outcomes = append(outcomes, e.review.Verify(ctx, task, sessionText))
	}
	pass := verify.Collect(outcomes)
	log.Debug("verification finished", "summary", pass.Summary())
	if !pass.Passed {
		return hash, pass.RejectReason(), nil
	}
	return hash, "", nil
}

// failAttempt rolls back the tree after a failed attempt and folds
// the failure into the identical-failure streak. A non-empty return
// is a run-level abort reason. Manual approval mode never rolls back;
// without per-task commits a rollback would also discard earlier
// tasks' uncommitted work.
func (e *Engine) failAttempt(ctx context.Context, log *logging.Logger, reason string) string {
	log.Warn("attempt failed", "reason", reason)
	if e.cfg.Run.RollbackOnFail && !e.cfg.Run.Manual() {
		if err := e.tree.Rollback(ctx); err != nil {
			return fmt.Sprintf("rollback failed: %v", err)
		}
	}
	return e.noteFailure(reason)
}

// noteFailure counts one failure against the consecutive-identical
// streak. A non-empty return aborts the run.
func (e *Engine) noteFailure(reason string) string {
	norm := normalizeReason(reason)
	e.mu.Lock()
	if norm != "" && norm == e.streakReason {
		e.streak++
	} else {
		e.streakReason = norm
		e.streak = 1
	}
	streak := e.streak
	e.mu.Unlock()

	limit := e.cfg.Run.MaxIdenticalFailures
	if limit > 0 && streak > limit {
		return fmt.Sprintf("%d consecutive failures with the same reason: %s", streak, reason)
	}
	return ""
}

func (e *Engine) resetStreak() {
	e.mu.Lock()
	e.streak = 0
	e.streakReason = ""
	e.mu.Unlock()
}

// normalizeReason collapses case and whitespace so equivalent reasons
// compare equal.
func normalizeReason(reason string) string {
	return strings.Join(strings.Fields(strings.ToLower(reason)), " ")
}

// interruptKind maps a cancelled turn to its outcome: a stop request
// ends the run cleanly, anything else is an abort.
func (e *Engine) interruptKind() taskKind {
	if e.stopping() {
		return taskStopped
	}
	return taskAbort
}

// pastDeadline reports a non-empty reason once the total run budget
// is spent. The in-flight turn is never cut short by it.
func (e *Engine) pastDeadline(rs *runState) string {
	if rs.deadline.IsZero() || time.Now().Before(rs.deadline) {
		return ""
	}
	return fmt.Sprintf("total run timeout of %v reached", e.cfg.Run.TotalTimeout())
}

// cleanupStop reverts partial edits an interrupted attempt left
// behind. It runs on a fresh context because the run's own context
// may already be cancelled.
func (e *Engine) cleanupStop(log *logging.Logger) {
	if !e.cfg.Run.RollbackOnFail || e.cfg.Run.Manual() {
		return
	}
	if err := e.tree.Rollback(context.Background()); err != nil {
		log.Warn("rollback after stop failed", "error", err)
	}
}

func (e *Engine) documentProgress() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters.base + e.counters.done, e.counters.base + e.counters.total
}

func (e *Engine) recordDone(summary *report.RunSummary, task taskfile.Task, commit string, attempts int, d time.Duration) {
	summary.Record(report.TaskReport{
		Task:       task.Text,
		Line:       task.Line,
		Outcome:    report.OutcomeDone,
		Attempts:   attempts,
		Commit:     commit,
		DurationMS: d.Milliseconds(),
	})
	e.mu.Lock()
	e.counters.done++
	e.mu.Unlock()
	e.events.Publish(progress.TaskEvent{Action: progress.TaskDone, Text: task.Text})
	e.resetStreak()
}

func (e *Engine) recordSkipped(summary *report.RunSummary, task taskfile.Task, reason string, attempts int, d time.Duration) {
	summary.Record(report.TaskReport{
		Task:       task.Text,
		Line:       task.Line,
		Outcome:    report.OutcomeSkipped,
		Reason:     reason,
		Attempts:   attempts,
		DurationMS: d.Milliseconds(),
	})
	e.mu.Lock()
	e.counters.skipped++
	e.mu.Unlock()
	e.events.Publish(progress.TaskEvent{Action: progress.TaskSkipped, Text: task.Text, Reason: reason})
}

func (e *Engine) recordFailed(summary *report.RunSummary, task taskfile.Task, reason string, attempts int, d time.Duration) {
	summary.Record(report.TaskReport{
		Task:       task.Text,
		Line:       task.Line,
		Outcome:    report.OutcomeFailed,
		Reason:     reason,
		Attempts:   attempts,
		DurationMS: d.Milliseconds(),
	})
	e.mu.Lock()
	e.counters.failed++
	e.mu.Unlock()
	e.events.Publish(progress.TaskEvent{Action: progress.TaskFailed, Text: task.Text, Reason: reason})
}

// finish finalizes counters and state, publishes the done event and
// writes the run report. The returned error is non-nil only for a
// failed run so Wait mirrors the terminal state.
func (e *Engine) finish(log *logging.Logger, summary *report.RunSummary, out runOutcome) error {
	summary.Finalize(time.Now(), out.reason, out.stopped)

	e.mu.Lock()
	switch {
	case out.stopped:
		e.state = StateIdle
	case out.failed:
		e.state = StateFailed
	default:
		e.state = StateCompleted
	}
	e.stop = false
	done := e.counters.done
	skipped := e.counters.skipped
	failed := e.counters.failed
	total := e.counters.total
	elapsed := time.Since(e.counters.started)
	e.counters.finished = time.Now()
	e.counters.task = ""
	e.counters.attempt = 0
	e.mu.Unlock()

	ev := progress.DoneEvent{
		Done:    done,
		Skipped: skipped,
		Failed:  failed,
		Total:   total,
		Elapsed: elapsed,
		Stopped: out.stopped,
	}
	if out.failed {
		ev.Err = out.reason
	}
	e.events.Publish(ev)

	// Best-effort: the report never decides the run's fate.
	if _, err := e.reports.Write(summary); err != nil {
		log.Warn("run report not written", "error", err)
	}

	if out.failed {
		log.Error("run failed", "reason", out.reason, "done", done, "skipped", skipped, "failed", failed)
		return errors.New(out.reason)
	}
	log.Info("run finished", "reason", out.reason, "done", done, "skipped", skipped, "failed", failed)
	return nil
}

// planPath names the discovery notes file for a task inside the plan
// directory.
func (e *Engine) planPath(task taskfile.Task) string {
	name := fmt.Sprintf("task-%d-%s.md", task.Line, slug(task.Text))
	return filepath.Join(e.cfg.Paths.ResolvePlanDir(e.workDir), name)
}

// slug reduces task text to a short filesystem-safe fragment.
func slug(text string) string {
	var b []byte
	for _, r := range strings.ToLower(text) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		switch {
		case alnum:
			b = append(b, byte(r))
		case len(b) > 0 && b[len(b)-1] != '-':
			b = append(b, '-')
		}
		if len(b) >= 32 {
			break
		}
	}
	return strings.Trim(string(b), "-")
}

func commitMessage(task taskfile.Task) string {
	return "task: " + task.Text
}
