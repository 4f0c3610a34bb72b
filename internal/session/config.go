package session

import (
	"time"

	"github.com/visorcraft/anton/internal/config"
)

// Kind distinguishes the session flavors the orchestrator runs.
type Kind int

const (
	// KindImplementation is a full-access turn that edits the tree.
	KindImplementation Kind = iota

	// KindDiscovery explores the repository and writes findings under
	// the plan directory only.
	KindDiscovery

	// KindReview checks discovery findings before implementation
	// under the same restrictions as discovery.
	KindReview
)

// String returns the kind's display name.
func (k Kind) String() string {
	switch k {
	case KindDiscovery:
		return "discovery"
	case KindReview:
		return "review"
	default:
		return "implementation"
	}
}

// Default iteration caps applied when the configured value is unset
// or non-positive.
const (
	DefaultImplementationCap = 50
	DefaultDiscoveryCap      = 500
)

// Config bounds one agent session.
type Config struct {
	Kind Kind

	// MaxIterations caps the agent's internal turns.
	MaxIterations int

	// Timeout bounds the whole session. Zero means no bound beyond
	// the caller's context.
	Timeout time.Duration

	// Tools enables agent tool use.
	Tools bool

	// WriteRoots restricts writes to the listed directories. Empty
	// means the session may write wherever its tool policy allows.
	WriteRoots []string

	// WorkDir is the directory the session runs in.
	WorkDir string

	// AllowDelegation permits the session to spawn sub-agent
	// sessions.
	AllowDelegation bool

	// AllowMCPServers permits auxiliary tool servers.
	AllowMCPServers bool
}

// Implementation derives the bounds for a full implementation turn:
// whatever tool access the run policy grants, the per-task timeout,
// and the configured iteration cap.
func Implementation(cfg *config.Config, workDir string) Config {
	return Config{
		Kind:            KindImplementation,
		MaxIterations:   capOrDefault(cfg.Run.MaxIterations, DefaultImplementationCap),
		Timeout:         cfg.Run.TaskTimeout(),
		Tools:           cfg.Run.Tools,
		WorkDir:         workDir,
		AllowDelegation: true,
		AllowMCPServers: true,
	}
}

// Discovery derives the bounds for a discovery sub-session: free to
// read anywhere, write access only under the plan directory.
func Discovery(cfg *config.Config, workDir string) Config {
	return restricted(KindDiscovery, cfg, workDir)
}

// Review derives the bounds for a requirements-review sub-session,
// sharing discovery's restrictions.
func Review(cfg *config.Config, workDir string) Config {
	return restricted(KindReview, cfg, workDir)
}

// restricted narrows the base policy for pre-implementation
// sub-sessions. Tools stay on even when implementation turns run
// without them, since discovery has to read the repository; write
// access is limited to the plan directory, regardless of scope-guard
// level, so these sessions can never touch target files before a plan
// exists. The guard level only decides how the run controller reacts
// when it detects an escape anyway.
func restricted(kind Kind, cfg *config.Config, workDir string) Config {
	roots := []string{cfg.Paths.ResolvePlanDir(workDir)}
	return Config{
		Kind:            kind,
		MaxIterations:   capOrDefault(cfg.Discovery.MaxIterations, DefaultDiscoveryCap),
		Timeout:         cfg.Discovery.Timeout(),
		Tools:           true,
		WriteRoots:      roots,
		WorkDir:         workDir,
		AllowDelegation: false,
		AllowMCPServers: false,
	}
}

func capOrDefault(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
