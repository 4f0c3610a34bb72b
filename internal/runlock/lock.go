// Package runlock provides cross-process mutual exclusion for anton
// runs. A small JSON lock file under the state directory guarantees at
// most one active run per working tree; staleness is decided by age and
// a zero-signal liveness probe so crashed runs never wedge the tree.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/visorcraft/anton/internal/logging"
)

// LockFileName is the name of the lock file within the state directory.
const LockFileName = "run.lock"

// StaleAfter is the age past which a lock is reclaimable regardless of
// the recorded process.
const StaleAfter = time.Hour

// ErrHeld is returned when another live run already holds the lock.
var ErrHeld = errors.New("a run is already in progress")

// Record is the serialized lock content shared across processes.
type Record struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Cwd       string    `json:"cwd"`
	TaskFile  string    `json:"task_file"`
}

// Handle represents an acquired run lock. It is the only object that
// can release the lock; there is no package-level ownership state.
type Handle struct {
	Record

	path   string
	logger *logging.Logger
}

// Acquire attempts to take the run lock for the given state directory.
// A stale lock (older than StaleAfter, whose process is gone, or whose
// file no longer decodes) is removed and reacquired. A lock held by
// this same process is adopted silently. Losing the create-exclusive race triggers exactly one
// re-read and re-evaluation before giving up. Returns ErrHeld, wrapped
// with the blocking PID, when another live run owns the lock.
func Acquire(stateDir, taskFile, cwd string, logger *logging.Logger) (*Handle, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	lockPath := filepath.Join(stateDir, LockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		switch rec, err := readRecord(lockPath); {
		case err == nil:
			if rec.PID == os.Getpid() {
				// Nested acquire within one run; adopt the lock we wrote.
				return &Handle{Record: *rec, path: lockPath, logger: logger}, nil
			}
			if !stale(rec) {
				return nil, contentionError(rec)
			}
			if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to remove stale lock: %w", err)
			}
			logger.Warn("stale run lock cleaned", "old_pid", rec.PID)
		case !errors.Is(err, os.ErrNotExist):
			// The file exists but does not decode, e.g. a truncated
			// record left by a crash mid-write. It protects nothing;
			// reclaim it like any stale lock or the tree stays wedged
			// until someone deletes the file by hand.
			if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to remove corrupt lock: %w", err)
			}
			logger.Warn("corrupt run lock cleaned", "path", lockPath)
		}

		h := &Handle{
			Record: Record{
				PID:       os.Getpid(),
				StartedAt: time.Now(),
				Cwd:       cwd,
				TaskFile:  taskFile,
			},
			path:   lockPath,
			logger: logger,
		}

		data, err := json.MarshalIndent(h.Record, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lock: %w", err)
		}

		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if os.IsExist(err) {
				// Another process won the race; loop once more to
				// re-read and re-evaluate, then fail.
				continue
			}
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			os.Remove(lockPath)
			return nil, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
		}

		logger.Info("run lock acquired", "pid", h.PID, "task_file", taskFile)
		return h, nil
	}

	if rec, err := readRecord(lockPath); err == nil {
		return nil, contentionError(rec)
	}
	return nil, ErrHeld
}

func contentionError(rec *Record) error {
	return fmt.Errorf("%w: held by PID %d since %s; stop it before starting another",
		ErrHeld, rec.PID, rec.StartedAt.Format(time.RFC3339))
}

// Release removes the lock file if this handle still owns it. It is
// nil-safe, safe to call multiple times, and best-effort: run cleanup
// must not itself fail the run, so callers may ignore the error.
func (h *Handle) Release() error {
	if h == nil || h.path == "" {
		return nil
	}

	rec, err := readRecord(h.path)
	if err != nil {
		// Already gone or unreadable; nothing to do.
		return nil
	}
	if rec.PID != h.PID {
		// Not ours anymore (reclaimed after staleness); leave it.
		return nil
	}

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	h.logger.Info("run lock released", "pid", h.PID)
	return nil
}

// IsHeld reports whether a live, non-stale lock exists in the state
// directory, returning its record when one does. Purely a read-side
// query; it never mutates the lock file.
func IsHeld(stateDir string) (*Record, bool) {
	rec, err := readRecord(filepath.Join(stateDir, LockFileName))
	if err != nil {
		return nil, false
	}
	if stale(rec) {
		return rec, false
	}
	return rec, true
}

// readRecord parses a lock file. Fields with unexpected types are
// treated as absent rather than failing the whole read, so a mangled
// lock degrades to a stale one instead of wedging acquisition.
func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}

	rec := &Record{}
	if v, ok := raw["pid"]; ok {
		_ = json.Unmarshal(v, &rec.PID)
	}
	if v, ok := raw["started_at"]; ok {
		_ = json.Unmarshal(v, &rec.StartedAt)
	}
	if v, ok := raw["cwd"]; ok {
		_ = json.Unmarshal(v, &rec.Cwd)
	}
	if v, ok := raw["task_file"]; ok {
		_ = json.Unmarshal(v, &rec.TaskFile)
	}
	return rec, nil
}

// stale reports whether a lock record no longer protects anything: the
// recorded process is gone, the record is older than StaleAfter, or the
// PID never decoded.
func stale(rec *Record) bool {
	if rec.PID <= 0 {
		return true
	}
	if time.Since(rec.StartedAt) > StaleAfter {
		return true
	}
	return !isProcessAlive(rec.PID)
}

// isProcessAlive checks for the process with signal 0, which probes
// existence without affecting it.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
