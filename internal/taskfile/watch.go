package taskfile

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/visorcraft/anton/internal/logging"
)

// Watcher reports modifications to the task document while a run is in
// flight. Task correlation assumes an unmodified file, so the run
// controller surfaces a warning when the document changes under it.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	logger *logging.Logger
	done   chan struct{}
}

// Watch begins watching the task document and invokes onChange for
// every write, create, or rename touching it. Editors typically replace
// files via rename, so the parent directory is watched rather than the
// file itself.
func Watch(path string, logger *logging.Logger, onChange func()) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve task file path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch task file directory: %w", err)
	}

	w := &Watcher{fsw: fsw, path: abs, logger: logger, done: make(chan struct{})}
	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func()) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.logger.Warn("task file changed on disk", "path", w.path, "op", event.Op.String())
				if onChange != nil {
					onChange()
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("task file watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its event loop to drain.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	err := w.fsw.Close()
	<-w.done
	return err
}
