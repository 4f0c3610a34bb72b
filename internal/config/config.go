// Package config defines anton's configuration surface and loads it
// through viper from .anton.yaml, environment variables, and flags.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Accepted values for RunConfig.ScopeGuard and RunConfig.ApprovalMode.
const (
	ScopeGuardStrict = "strict"
	ScopeGuardWarn   = "warn"

	ApprovalAuto   = "auto"
	ApprovalManual = "manual"
)

// Config represents the complete anton configuration.
type Config struct {
	Run       RunConfig       `mapstructure:"run"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Commit    CommitConfig    `mapstructure:"commit"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// RunConfig controls the per-run execution policy.
type RunConfig struct {
	// TaskTimeoutSec bounds a single implementation turn, in seconds.
	TaskTimeoutSec int `mapstructure:"task_timeout_sec"`
	// MaxIterations caps agent iterations per implementation turn.
	// Zero or negative falls back to the safe default of 50.
	MaxIterations int `mapstructure:"max_iterations"`
	// Tools enables agent tool use for implementation turns. Discovery
	// and review turns always run with tools regardless.
	Tools bool `mapstructure:"tools"`
	// TotalTimeoutSec bounds the whole run; the current turn is allowed
	// to finish when it expires. Zero disables the bound.
	TotalTimeoutSec int `mapstructure:"total_timeout_sec"`
	// MaxRetries is the per-task retry budget across blocked and failed
	// attempts.
	MaxRetries int `mapstructure:"max_retries"`
	// MaxIdenticalFailures aborts the run after this many consecutive
	// failures sharing the same normalized reason.
	MaxIdenticalFailures int `mapstructure:"max_identical_failures"`
	// Decompose allows the agent to split a task into subtasks.
	Decompose bool `mapstructure:"decompose"`
	// MaxDecomposeDepth limits how many times a task may be split.
	MaxDecomposeDepth int `mapstructure:"max_decompose_depth"`
	// SkipOnBlocked continues with the next task when the agent reports
	// blocked instead of halting the run.
	SkipOnBlocked bool `mapstructure:"skip_on_blocked"`
	// SkipOnFail continues past a task whose retry budget is exhausted.
	SkipOnFail bool `mapstructure:"skip_on_fail"`
	// RollbackOnFail reverts tracked changes and removes untracked files
	// left by a failed attempt before moving on.
	RollbackOnFail bool `mapstructure:"rollback_on_fail"`
	// ScopeGuard controls enforcement of sub-session write roots:
	// "strict" or "warn".
	ScopeGuard string `mapstructure:"scope_guard"`
	// ApprovalMode is "auto" (commit without asking) or "manual".
	ApprovalMode string `mapstructure:"approval_mode"`
}

// DiscoveryConfig controls the optional two-phase mode: a bounded
// discovery sub-session, then an optional requirements review, both
// restricted to writing under the plan directory.
type DiscoveryConfig struct {
	// Enabled turns on the discovery phase before implementation.
	Enabled bool `mapstructure:"enabled"`
	// Review additionally runs a requirements-review sub-session after
	// discovery.
	Review bool `mapstructure:"review"`
	// MaxIterations caps agent iterations per discovery or review turn.
	// Zero or negative falls back to the default of 500.
	MaxIterations int `mapstructure:"max_iterations"`
	// TimeoutSec bounds a single discovery or review turn, in seconds.
	TimeoutSec int `mapstructure:"timeout_sec"`
}

// CommitConfig controls the version-control safety net.
type CommitConfig struct {
	// Auto commits all changes after each task the agent completes.
	Auto bool `mapstructure:"auto"`
	// Verify re-checks the diff after a done result before accepting it.
	Verify bool `mapstructure:"verify"`
	// GitTimeoutSec bounds each git subprocess call, in seconds.
	GitTimeoutSec int `mapstructure:"git_timeout_sec"`
}

// ProgressConfig controls heartbeat and event emission.
type ProgressConfig struct {
	// Events enables progress event delivery to subscribers.
	Events bool `mapstructure:"events"`
	// HeartbeatSec is the heartbeat interval, in seconds.
	HeartbeatSec int `mapstructure:"heartbeat_sec"`
}

// KnowledgeConfig controls the retrieved-context store consulted while
// building prompts.
type KnowledgeConfig struct {
	// Enabled turns on context retrieval for prompts.
	Enabled bool `mapstructure:"enabled"`
	// TokenBudget caps how many estimated tokens of retrieved context a
	// prompt may carry.
	TokenBudget int `mapstructure:"token_budget"`
}

// LoggingConfig controls the run log.
type LoggingConfig struct {
	// Enabled writes a structured run log under the state directory.
	Enabled bool `mapstructure:"enabled"`
	// Level is one of "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
}

// PathsConfig controls where anton stores run state.
type PathsConfig struct {
	// StateDir holds the lock, run log, knowledge store, and reports.
	// Relative paths resolve against the working directory. Supports ~.
	StateDir string `mapstructure:"state_dir"`
	// PlanDir is the only writable root for discovery and review
	// sub-sessions. Defaults to {state_dir}/plan when empty.
	PlanDir string `mapstructure:"plan_dir"`
}

// Default returns a Config with anton's default policy.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			TaskTimeoutSec:       1800, // 30 minutes per implementation turn
			MaxIterations:        50,
			Tools:                true,
			TotalTimeoutSec:      0, // unbounded
			MaxRetries:           3,
			MaxIdenticalFailures: 3,
			Decompose:            true,
			MaxDecomposeDepth:    1,
			SkipOnBlocked:        true,
			SkipOnFail:           false,
			RollbackOnFail:       true,
			ScopeGuard:           ScopeGuardStrict,
			ApprovalMode:         ApprovalAuto,
		},
		Discovery: DiscoveryConfig{
			Enabled:       false,
			Review:        false,
			MaxIterations: 500,
			TimeoutSec:    900, // 15 minutes per discovery turn
		},
		Commit: CommitConfig{
			Auto:          true,
			Verify:        false,
			GitTimeoutSec: 60,
		},
		Progress: ProgressConfig{
			Events:       true,
			HeartbeatSec: 30,
		},
		Knowledge: KnowledgeConfig{
			Enabled:     true,
			TokenBudget: 2000,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Paths: PathsConfig{
			StateDir: ".anton",
			PlanDir:  "",
		},
	}
}

// TaskTimeout returns the per-task timeout as a time.Duration.
func (r *RunConfig) TaskTimeout() time.Duration {
	return time.Duration(r.TaskTimeoutSec) * time.Second
}

// Manual reports whether changes wait for human approval. Manual runs
// never commit or roll back; the tree is left for review.
func (r *RunConfig) Manual() bool {
	return r.ApprovalMode == ApprovalManual
}

// TotalTimeout returns the whole-run bound; zero means unbounded.
func (r *RunConfig) TotalTimeout() time.Duration {
	return time.Duration(r.TotalTimeoutSec) * time.Second
}

// Timeout returns the per-phase discovery timeout as a time.Duration.
func (d *DiscoveryConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

// GitTimeout returns the per-call git timeout as a time.Duration.
func (c *CommitConfig) GitTimeout() time.Duration {
	return time.Duration(c.GitTimeoutSec) * time.Second
}

// HeartbeatInterval returns the heartbeat period as a time.Duration.
func (p *ProgressConfig) HeartbeatInterval() time.Duration {
	return time.Duration(p.HeartbeatSec) * time.Second
}

// ResolveStateDir returns the state directory resolved against baseDir,
// expanding a leading ~ to the user's home directory.
func (p *PathsConfig) ResolveStateDir(baseDir string) string {
	return resolvePath(p.StateDir, baseDir, filepath.Join(baseDir, ".anton"))
}

// ResolvePlanDir returns the plan directory resolved against baseDir.
// When unset it defaults to "plan" inside the state directory.
func (p *PathsConfig) ResolvePlanDir(baseDir string) string {
	if p.PlanDir == "" {
		return filepath.Join(p.ResolveStateDir(baseDir), "plan")
	}
	return resolvePath(p.PlanDir, baseDir, "")
}

func resolvePath(path, baseDir, fallback string) string {
	if path == "" {
		return fallback
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// SetDefaults registers default values with viper.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("run.task_timeout_sec", defaults.Run.TaskTimeoutSec)
	v.SetDefault("run.max_iterations", defaults.Run.MaxIterations)
	v.SetDefault("run.tools", defaults.Run.Tools)
	v.SetDefault("run.total_timeout_sec", defaults.Run.TotalTimeoutSec)
	v.SetDefault("run.max_retries", defaults.Run.MaxRetries)
	v.SetDefault("run.max_identical_failures", defaults.Run.MaxIdenticalFailures)
	v.SetDefault("run.decompose", defaults.Run.Decompose)
	v.SetDefault("run.max_decompose_depth", defaults.Run.MaxDecomposeDepth)
	v.SetDefault("run.skip_on_blocked", defaults.Run.SkipOnBlocked)
	v.SetDefault("run.skip_on_fail", defaults.Run.SkipOnFail)
	v.SetDefault("run.rollback_on_fail", defaults.Run.RollbackOnFail)
	v.SetDefault("run.scope_guard", defaults.Run.ScopeGuard)
	v.SetDefault("run.approval_mode", defaults.Run.ApprovalMode)

	v.SetDefault("discovery.enabled", defaults.Discovery.Enabled)
	v.SetDefault("discovery.review", defaults.Discovery.Review)
	v.SetDefault("discovery.max_iterations", defaults.Discovery.MaxIterations)
	v.SetDefault("discovery.timeout_sec", defaults.Discovery.TimeoutSec)

	v.SetDefault("commit.auto", defaults.Commit.Auto)
	v.SetDefault("commit.verify", defaults.Commit.Verify)
	v.SetDefault("commit.git_timeout_sec", defaults.Commit.GitTimeoutSec)

	v.SetDefault("progress.events", defaults.Progress.Events)
	v.SetDefault("progress.heartbeat_sec", defaults.Progress.HeartbeatSec)

	v.SetDefault("knowledge.enabled", defaults.Knowledge.Enabled)
	v.SetDefault("knowledge.token_budget", defaults.Knowledge.TokenBudget)

	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	v.SetDefault("paths.plan_dir", defaults.Paths.PlanDir)
}

// Load builds a viper instance for the working directory, reads
// .anton.yaml when present, applies ANTON_* environment overrides, and
// unmarshals into a validated Config. A missing config file is not an
// error; defaults apply.
func Load(workDir string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName(".anton")
	v.SetConfigType("yaml")
	if workDir != "" {
		v.AddConfigPath(workDir)
	} else {
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("ANTON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ValidScopeGuards returns the accepted scope_guard values.
func ValidScopeGuards() []string {
	return []string{ScopeGuardStrict, ScopeGuardWarn}
}

// ValidApprovalModes returns the accepted approval_mode values.
func ValidApprovalModes() []string {
	return []string{ApprovalAuto, ApprovalManual}
}
