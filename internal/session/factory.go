package session

import (
	"github.com/visorcraft/anton/internal/config"
	"github.com/visorcraft/anton/internal/logging"
)

// Factory builds CLI-backed sessions for each run role from one
// configuration.
type Factory struct {
	cfg     *config.Config
	workDir string
	logger  *logging.Logger
}

// NewFactory creates a session factory for runs in workDir.
func NewFactory(cfg *config.Config, workDir string, logger *logging.Logger) *Factory {
	return &Factory{cfg: cfg, workDir: workDir, logger: logger}
}

// Implementation returns a full-access session bounded by the
// per-task budget.
func (f *Factory) Implementation() Session {
	return NewClaudeSession(Implementation(f.cfg, f.workDir), f.logger)
}

// Discovery returns a restricted session for repository exploration.
func (f *Factory) Discovery() Session {
	return NewClaudeSession(Discovery(f.cfg, f.workDir), f.logger)
}

// Review returns a restricted session for plan and change review.
func (f *Factory) Review() Session {
	return NewClaudeSession(Review(f.cfg, f.workDir), f.logger)
}
