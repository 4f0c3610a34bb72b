// Package result parses the structured outcome block an agent appends
// to its free-form output.
package result

import (
	"fmt"
	"regexp"
	"strings"
)

// BlockTag labels the fenced code block the agent reports through.
const BlockTag = "anton-result"

// Status is the agent's verdict for a single task attempt.
type Status int

const (
	// StatusBlocked indicates the agent could not complete the task.
	// It is the zero value: absent or malformed output must never be
	// read as done.
	StatusBlocked Status = iota

	// StatusDone indicates the task was completed.
	StatusDone

	// StatusDecompose indicates the task should be replaced by the
	// listed subtasks.
	StatusDecompose
)

// String returns the wire spelling of the status.
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusDecompose:
		return "decompose"
	default:
		return "blocked"
	}
}

// AgentResult is the parsed outcome of one agent turn.
type AgentResult struct {
	Status   Status
	Reason   string
	Subtasks []string

	// Malformed is true when no well-formed block was found and the
	// status was forced to blocked; Reason then carries a diagnostic.
	Malformed bool
}

var (
	// fenceOpenRe matches the opening fence of a result block.
	fenceOpenRe = regexp.MustCompile(`^\s*` + "```" + `\s*` + BlockTag + `\s*$`)

	// subtaskRe matches a dash list item carrying a subtask.
	subtaskRe = regexp.MustCompile(`^\s*-\s+(.+?)\s*$`)
)

// Parse extracts the authoritative result from raw agent output. When
// the output contains several result blocks the last one wins, which
// guards against the agent echoing format examples earlier in its
// answer. The line grammar is deliberately loose; language models
// drift on whitespace and casing, so only the structure that decides
// control flow is enforced.
func Parse(text string) AgentResult {
	blocks := extractBlocks(text)
	if len(blocks) == 0 {
		return AgentResult{
			Status:    StatusBlocked,
			Reason:    "no result block found in agent output",
			Malformed: true,
		}
	}
	return parseBlock(blocks[len(blocks)-1])
}

// extractBlocks returns the contents of every result block in order.
// A block missing its closing fence at end of output is still
// captured.
func extractBlocks(text string) []string {
	var blocks []string
	var current []string
	inBlock := false

	for _, line := range strings.Split(text, "\n") {
		if inBlock {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
				inBlock = false
				continue
			}
			current = append(current, line)
			continue
		}
		if fenceOpenRe.MatchString(line) {
			inBlock = true
			current = nil
		}
	}
	if inBlock {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func parseBlock(block string) AgentResult {
	lines := strings.Split(block, "\n")

	first := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			first = i
			break
		}
	}
	if first == -1 {
		return AgentResult{
			Status:    StatusBlocked,
			Reason:    "result block is empty",
			Malformed: true,
		}
	}

	value, ok := cutPrefixFold(strings.TrimSpace(lines[first]), "status:")
	if !ok {
		return AgentResult{
			Status:    StatusBlocked,
			Reason:    "result block missing status line",
			Malformed: true,
		}
	}
	value = strings.TrimSpace(value)

	var status Status
	switch strings.ToLower(value) {
	case "done":
		status = StatusDone
	case "blocked":
		status = StatusBlocked
	case "decompose":
		status = StatusDecompose
	default:
		return AgentResult{
			Status:    StatusBlocked,
			Reason:    fmt.Sprintf("invalid status %q in result block", value),
			Malformed: true,
		}
	}

	res := AgentResult{Status: status}
	for _, line := range lines[first+1:] {
		if res.Reason == "" {
			if after, ok := cutPrefixFold(strings.TrimSpace(line), "reason:"); ok {
				res.Reason = strings.TrimSpace(after)
				continue
			}
		}
		if m := subtaskRe.FindStringSubmatch(line); m != nil {
			res.Subtasks = append(res.Subtasks, m[1])
		}
	}
	return res
}

// cutPrefixFold is strings.CutPrefix with ASCII-case-insensitive
// matching on the prefix.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}
