// Package engine is the run controller: it ties the lock, the task
// file, agent sessions, verification and version control together
// into a task-by-task execution loop.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/visorcraft/anton/internal/config"
	"github.com/visorcraft/anton/internal/knowledge"
	"github.com/visorcraft/anton/internal/logging"
	"github.com/visorcraft/anton/internal/progress"
	"github.com/visorcraft/anton/internal/prompt"
	"github.com/visorcraft/anton/internal/report"
	"github.com/visorcraft/anton/internal/runlock"
	"github.com/visorcraft/anton/internal/session"
	"github.com/visorcraft/anton/internal/vcs"
	"github.com/visorcraft/anton/internal/verify"
)

// State identifies the controller's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateCompleted
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Tree is the version-control surface the controller drives.
// *vcs.Tree satisfies it. Cleanliness checks go through the git
// verifier, which filters metadata paths out of the status.
type Tree interface {
	Status(ctx context.Context) (string, error)
	LastCommit(ctx context.Context) (string, error)
	CommitAll(ctx context.Context, message string) (string, error)
	Rollback(ctx context.Context) error
	Amend(ctx context.Context) (string, error)
}

// Sessions supplies the agent sessions a run needs.
type Sessions interface {
	Implementation() session.Session
	Discovery() session.Session
	Review() session.Session
}

// Lock is an acquired run lock.
type Lock interface {
	Release() error
}

// Locker takes the one-run-per-tree lock.
type Locker interface {
	Acquire(taskFile string) (Lock, error)
}

// ReportSink persists run summaries.
type ReportSink interface {
	Write(summary *report.RunSummary) (string, error)
}

// Snapshot is the externally visible progress state of the
// controller. Done and Total include tasks that were already checked
// off in the document when the run began.
type Snapshot struct {
	State    State
	TaskFile string
	Task     string
	Attempt  int
	Done     int
	Skipped  int
	Failed   int
	Total    int
	Elapsed  time.Duration
}

// Engine is the run controller. One engine drives at most one run at
// a time; Start while a run is active fails.
type Engine struct {
	cfg     *config.Config
	workDir string
	logger  *logging.Logger

	sessions Sessions
	tree     Tree
	locks    Locker
	reports  ReportSink
	events   *progress.Broadcaster
	prompts  *prompt.Builder
	gitCheck *verify.GitVerifier
	review   *verify.ReviewVerifier

	mu           sync.Mutex
	state        State
	counters     counters
	lastLoop     *progress.LoopEvent
	stop         bool
	cancel       context.CancelFunc
	group        *errgroup.Group
	streak       int
	streakReason string
}

// counters is the run-scoped progress state, guarded by Engine.mu.
// base counts tasks already checked off in the document when the run
// began; total counts this run's pending work and grows when
// decomposition substitutes subtasks.
type counters struct {
	taskFile string
	task     string
	attempt  int
	base     int
	done     int
	skipped  int
	failed   int
	total    int
	started  time.Time
	finished time.Time
}

// Options overrides collaborators, mainly for tests. Nil fields get
// production defaults.
type Options struct {
	Logger    *logging.Logger
	Sessions  Sessions
	Tree      Tree
	Locks     Locker
	Reports   ReportSink
	Events    *progress.Broadcaster
	Knowledge prompt.Searcher
}

// New creates a run controller for workDir.
func New(cfg *config.Config, workDir string, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	stateDir := cfg.Paths.ResolveStateDir(workDir)

	e := &Engine{
		cfg:     cfg,
		workDir: workDir,
		logger:  logger,
	}

	e.sessions = opts.Sessions
	if e.sessions == nil {
		e.sessions = session.NewFactory(cfg, workDir, logger)
	}
	e.tree = opts.Tree
	if e.tree == nil {
		e.tree = vcs.NewTree(workDir, cfg.Commit.GitTimeout(), logger)
	}
	e.locks = opts.Locks
	if e.locks == nil {
		e.locks = &lockManager{stateDir: stateDir, workDir: workDir, logger: logger}
	}
	e.reports = opts.Reports
	if e.reports == nil {
		e.reports = report.NewWriter(stateDir, logger)
	}
	e.events = opts.Events
	if e.events == nil {
		e.events = progress.NewBroadcaster(0)
	}

	store := opts.Knowledge
	if store == nil && cfg.Knowledge.Enabled {
		store = knowledge.NewStoreWithDir(filepath.Join(stateDir, "knowledge"))
	}
	budget := 0
	if cfg.Knowledge.Enabled {
		budget = cfg.Knowledge.TokenBudget
	}
	e.prompts = prompt.NewBuilder(store, budget)

	e.gitCheck = verify.NewGitVerifier(e.tree, cfg.Paths.StateDir)
	e.review = verify.NewReviewVerifier(e.sessions.Review(), e.tree)

	return e
}

// Events exposes the progress broadcaster so surfaces can subscribe
// before starting a run.
func (e *Engine) Events() *progress.Broadcaster {
	return e.events
}

// Start begins a run over taskFilePath. It returns immediately; the
// run proceeds on its own goroutine until it completes, fails or is
// stopped.
func (e *Engine) Start(taskFilePath string) error {
	e.mu.Lock()
	if e.state == StateRunning || e.state == StateStopping {
		e.mu.Unlock()
		return errors.New("a run is already active")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	g, runCtx := errgroup.WithContext(runCtx)
	e.state = StateRunning
	e.stop = false
	e.cancel = cancel
	e.group = g
	e.lastLoop = nil
	e.streak = 0
	e.streakReason = ""
	e.counters = counters{taskFile: taskFilePath, started: time.Now()}
	e.mu.Unlock()

	g.Go(func() error {
		defer cancel()
		return e.run(runCtx, taskFilePath)
	})
	return nil
}

// Wait blocks until the current run finishes and returns its error,
// nil when no run was started.
func (e *Engine) Wait() error {
	e.mu.Lock()
	g := e.group
	e.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop requests a cooperative stop: the in-flight turn finishes and
// no new task starts. A second Stop cancels the in-flight turn
// through the session's own cancellation path. Safe no-op when
// nothing is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateRunning:
		e.state = StateStopping
		e.stop = true
		e.logger.Info("stop requested; finishing current turn")
	case StateStopping:
		if e.cancel != nil {
			e.logger.Warn("second stop request; cancelling current turn")
			e.cancel()
		}
	}
}

// Status returns the current snapshot and the last loop event seen
// this run, if any.
func (e *Engine) Status() (Snapshot, *progress.LoopEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		State:    e.state,
		TaskFile: e.counters.taskFile,
		Task:     e.counters.task,
		Attempt:  e.counters.attempt,
		Done:     e.counters.base + e.counters.done,
		Skipped:  e.counters.skipped,
		Failed:   e.counters.failed,
		Total:    e.counters.base + e.counters.total,
	}
	switch {
	case e.counters.started.IsZero():
	case e.counters.finished.IsZero():
		s.Elapsed = time.Since(e.counters.started)
	default:
		s.Elapsed = e.counters.finished.Sub(e.counters.started)
	}

	var loop *progress.LoopEvent
	if e.lastLoop != nil {
		l := *e.lastLoop
		loop = &l
	}
	return s, loop
}

// progressSnapshot adapts the counters for the heartbeat goroutine.
func (e *Engine) progressSnapshot() progress.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return progress.Snapshot{
		Done:    e.counters.base + e.counters.done,
		Skipped: e.counters.skipped,
		Total:   e.counters.base + e.counters.total,
		Task:    e.counters.task,
		Attempt: e.counters.attempt,
		Elapsed: time.Since(e.counters.started),
	}
}

func (e *Engine) stopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop
}

func (e *Engine) setCurrent(task string, attempt int) {
	e.mu.Lock()
	e.counters.task = task
	e.counters.attempt = attempt
	e.mu.Unlock()
}

func (e *Engine) addTotal(n int) {
	e.mu.Lock()
	e.counters.total += n
	e.mu.Unlock()
}

// noteLoop records a loop event for Status, the progress stream and
// the run report.
func (e *Engine) noteLoop(summary *report.RunSummary, taskText string, recovered bool, detail string) {
	ev := progress.LoopEvent{Task: taskText, Recovered: recovered, Detail: detail}
	e.mu.Lock()
	e.lastLoop = &ev
	e.mu.Unlock()
	e.events.Publish(ev)
	summary.RecordLoop(report.LoopNote{Task: taskText, Recovered: recovered, Detail: detail})
	if recovered {
		e.logger.Warn("session recovered from a tool-call loop", "task", taskText)
	} else {
		e.logger.Warn("session aborted on a tool-call loop", "task", taskText, "detail", detail)
	}
}

// lockManager adapts runlock to the Locker interface.
type lockManager struct {
	stateDir string
	workDir  string
	logger   *logging.Logger
}

func (m *lockManager) Acquire(taskFile string) (Lock, error) {
	h, err := runlock.Acquire(m.stateDir, taskFile, m.workDir, m.logger)
	if err != nil {
		return nil, err
	}
	return h, nil
}
