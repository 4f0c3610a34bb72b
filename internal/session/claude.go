package session

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/visorcraft/anton/internal/logging"
)

// ClaudeSession runs turns through the Claude Code CLI.
type ClaudeSession struct {
	// Command is the path to the claude binary. Defaults to "claude".
	Command string

	cfg    Config
	logger *logging.Logger
}

// NewClaudeSession creates a session bounded by cfg.
func NewClaudeSession(cfg Config, logger *logging.Logger) *ClaudeSession {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ClaudeSession{Command: "claude", cfg: cfg, logger: logger}
}

// Available checks if the claude CLI is installed and accessible.
func (s *ClaudeSession) Available() bool {
	_, err := exec.LookPath(s.command())
	return err == nil
}

// Ask executes one turn and collects the agent's full output.
func (s *ClaudeSession) Ask(ctx context.Context, prompt string) (*Reply, error) {
	start := time.Now()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.command(), s.args(prompt)...)
	cmd.Dir = s.cfg.WorkDir

	var stdout, stderr bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.command(), err)
	}

	var loop *LoopNotice
	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB max line size
	for scanner.Scan() {
		line := scanner.Text()
		stdout.WriteString(line)
		stdout.WriteByte('\n')
		if detail, ok := detectLoop(line); ok {
			loop = &LoopNotice{Detail: detail}
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		// The read loop stopped early, so the result block is gone and
		// the process may be wedged on a full pipe. Kill it rather
		// than wait out the turn timeout.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("unreadable agent output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %v", ErrTurnTimeout, s.cfg.Timeout)
		}
		if ctx.Err() == context.Canceled {
			return nil, ErrTurnCancelled
		}
		if loop != nil {
			return nil, fmt.Errorf("%w: %s", ErrToolLoop, loop.Detail)
		}
		return nil, fmt.Errorf("%s exited with error: %w\nstderr: %s", s.command(), err, stderr.String())
	}

	if loop != nil {
		// The process finished despite the warning, so the session
		// recovered on its own.
		loop.Recovered = true
	}

	turns, toolCalls := parseMetrics(stderr.String())
	s.logger.Debug("session turn complete",
		"kind", s.cfg.Kind.String(),
		"elapsed", time.Since(start).String(),
		"turns", turns,
	)

	return &Reply{
		Text:      stdout.String(),
		Turns:     turns,
		ToolCalls: toolCalls,
		Loop:      loop,
	}, nil
}

// command returns the claude binary path.
func (s *ClaudeSession) command() string {
	if s.Command != "" {
		return s.Command
	}
	return "claude"
}

// args assembles the CLI invocation for one turn. Full-access turns
// skip the permission system entirely. Restricted turns leave it on,
// which in non-interactive mode denies writes outside the granted
// roots while reads work everywhere.
func (s *ClaudeSession) args(prompt string) []string {
	args := []string{"--print", "--max-turns", strconv.Itoa(s.cfg.MaxIterations)}

	switch {
	case !s.cfg.Tools:
		args = append(args, "--disallowed-tools", "Bash,Edit,Write")
	case len(s.cfg.WriteRoots) == 0:
		args = append(args, "--dangerously-skip-permissions")
	default:
		for _, root := range s.cfg.WriteRoots {
			args = append(args, "--add-dir", root)
		}
	}

	if !s.cfg.AllowDelegation {
		args = append(args, "--disallowed-tools", "Task")
	}
	if !s.cfg.AllowMCPServers {
		args = append(args, "--strict-mcp-config")
	}

	return append(args, prompt)
}

// loopRe matches the warning the CLI prints when it detects
// repetitive tool calls.
var loopRe = regexp.MustCompile(`(?i)repetitive tool (?:use|calls?)`)

// detectLoop reports whether a line carries a tool-call-loop warning.
func detectLoop(line string) (string, bool) {
	if !loopRe.MatchString(line) {
		return "", false
	}
	return line, true
}

// parseMetrics pulls turn and tool-call counts from session stderr
// when the CLI reports them. Returns zeros when absent.
func parseMetrics(output string) (int, int) {
	var turns, toolCalls int

	turnPatterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i)turns?[:\s]+(\d+)`),
		regexp.MustCompile(`(\d+)\s*turns?`),
	}
	toolPatterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i)tool\s*calls?[:\s]+(\d+)`),
		regexp.MustCompile(`(\d+)\s*tool\s*calls?`),
	}

	for _, re := range turnPatterns {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				turns = v
				break
			}
		}
	}

	for _, re := range toolPatterns {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				toolCalls = v
				break
			}
		}
	}

	return turns, toolCalls
}
