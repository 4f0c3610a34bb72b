package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Default() config is invalid: %v", ValidationErrors(errs))
	}
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Run.MaxIterations != 50 {
		t.Errorf("Run.MaxIterations = %d, want 50", cfg.Run.MaxIterations)
	}
	if cfg.Discovery.MaxIterations != 500 {
		t.Errorf("Discovery.MaxIterations = %d, want 500", cfg.Discovery.MaxIterations)
	}
	if !cfg.Commit.Auto {
		t.Error("Commit.Auto = false, want true")
	}
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("run:\n  max_retries: 7\n  skip_on_blocked: false\ncommit:\n  auto: false\n")
	if err := os.WriteFile(filepath.Join(dir, ".anton.yaml"), content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Run.MaxRetries != 7 {
		t.Errorf("Run.MaxRetries = %d, want 7", cfg.Run.MaxRetries)
	}
	if cfg.Run.SkipOnBlocked {
		t.Error("Run.SkipOnBlocked = true, want false")
	}
	if cfg.Commit.Auto {
		t.Error("Commit.Auto = true, want false")
	}
	// Untouched keys keep their defaults.
	if cfg.Run.MaxIdenticalFailures != 3 {
		t.Errorf("Run.MaxIdenticalFailures = %d, want 3", cfg.Run.MaxIdenticalFailures)
	}
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	content := []byte("run:\n  task_timeout_sec: -5\n  scope_guard: everything\n")
	if err := os.WriteFile(filepath.Join(dir, ".anton.yaml"), content, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Load() should fail on invalid values")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "negative task timeout",
			mutate: func(c *Config) { c.Run.TaskTimeoutSec = -1 },
			field:  "run.task_timeout_sec",
		},
		{
			name:   "negative total timeout",
			mutate: func(c *Config) { c.Run.TotalTimeoutSec = -1 },
			field:  "run.total_timeout_sec",
		},
		{
			name:   "zero identical failure streak",
			mutate: func(c *Config) { c.Run.MaxIdenticalFailures = 0 },
			field:  "run.max_identical_failures",
		},
		{
			name:   "unknown scope guard",
			mutate: func(c *Config) { c.Run.ScopeGuard = "loose" },
			field:  "run.scope_guard",
		},
		{
			name:   "unknown approval mode",
			mutate: func(c *Config) { c.Run.ApprovalMode = "yolo" },
			field:  "run.approval_mode",
		},
		{
			name:   "review without discovery",
			mutate: func(c *Config) { c.Discovery.Review = true },
			field:  "discovery.review",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Logging.Level = "trace" },
			field:  "logging.level",
		},
		{
			name:   "negative token budget",
			mutate: func(c *Config) { c.Knowledge.TokenBudget = -100 },
			field:  "knowledge.token_budget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("Validate() found no errors, want at least one")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() errors %v do not mention field %q", errs, tt.field)
			}
		})
	}
}

func TestValidate_NonPositiveIterationCapsAllowed(t *testing.T) {
	cfg := Default()
	cfg.Run.MaxIterations = 0
	cfg.Discovery.MaxIterations = -1

	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("non-positive iteration caps should validate (fallback applies at run time), got %v", errs)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	cfg.Run.TaskTimeoutSec = 90
	cfg.Run.TotalTimeoutSec = 3600
	cfg.Discovery.TimeoutSec = 120
	cfg.Commit.GitTimeoutSec = 45
	cfg.Progress.HeartbeatSec = 15

	if got := cfg.Run.TaskTimeout(); got != 90*time.Second {
		t.Errorf("TaskTimeout() = %v, want 90s", got)
	}
	if got := cfg.Run.TotalTimeout(); got != time.Hour {
		t.Errorf("TotalTimeout() = %v, want 1h", got)
	}
	if got := cfg.Discovery.Timeout(); got != 2*time.Minute {
		t.Errorf("Discovery.Timeout() = %v, want 2m", got)
	}
	if got := cfg.Commit.GitTimeout(); got != 45*time.Second {
		t.Errorf("GitTimeout() = %v, want 45s", got)
	}
	if got := cfg.Progress.HeartbeatInterval(); got != 15*time.Second {
		t.Errorf("HeartbeatInterval() = %v, want 15s", got)
	}
}

func TestPathsConfig_Resolve(t *testing.T) {
	p := PathsConfig{StateDir: ".anton", PlanDir: ""}

	state := p.ResolveStateDir("/work/repo")
	if state != filepath.Join("/work/repo", ".anton") {
		t.Errorf("ResolveStateDir() = %q", state)
	}

	plan := p.ResolvePlanDir("/work/repo")
	if plan != filepath.Join("/work/repo", ".anton", "plan") {
		t.Errorf("ResolvePlanDir() = %q, want state dir + /plan", plan)
	}

	p.PlanDir = "/abs/plans"
	if got := p.ResolvePlanDir("/work/repo"); got != "/abs/plans" {
		t.Errorf("ResolvePlanDir() with absolute path = %q, want /abs/plans", got)
	}

	p.StateDir = ""
	if got := p.ResolveStateDir("/work/repo"); got != filepath.Join("/work/repo", ".anton") {
		t.Errorf("ResolveStateDir() with empty dir = %q, want default", got)
	}
}
