// Package session runs bounded agent conversations and derives the
// per-flavor limits they operate under.
package session

import (
	"context"
	"errors"
)

// Session is one bounded conversation with a coding agent. The
// orchestrator treats it as opaque: the session owns model calls, tool
// execution, and its own loop-detection internals.
type Session interface {
	// Ask sends prompt and blocks until the agent finishes the turn
	// or ctx is cancelled.
	Ask(ctx context.Context, prompt string) (*Reply, error)
}

// Reply is the agent's answer for one turn.
type Reply struct {
	// Text is the full output from the agent.
	Text string

	// Turns is the number of internal iterations the session used,
	// when reported.
	Turns int

	// ToolCalls is the number of tool invocations, when reported.
	ToolCalls int

	// Loop is set when the session hit a repetitive tool-call
	// condition during the turn and continued past it.
	Loop *LoopNotice
}

// LoopNotice describes a tool-call loop the session surfaced.
type LoopNotice struct {
	// Recovered is true when the session continued past the loop on
	// its own; false when it gave up on the turn.
	Recovered bool

	// Detail is the session's own description of the condition.
	Detail string
}

var (
	// ErrTurnTimeout reports the session's own timeout elapsed before
	// the agent finished the turn.
	ErrTurnTimeout = errors.New("session timed out")

	// ErrTurnCancelled reports the turn was cancelled through its
	// context.
	ErrTurnCancelled = errors.New("session cancelled")

	// ErrToolLoop reports the session aborted the turn on a
	// repetitive tool-call condition.
	ErrToolLoop = errors.New("session aborted on tool-call loop")
)
