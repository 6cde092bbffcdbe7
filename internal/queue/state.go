// Package queue implements the durable application queue and its worker.
//
// Valid state graph for a task:
//
//	QUEUED ──► IN_PROGRESS ──► COMPLETED
//	   ▲            │
//	   └────────────┼────────► FAILED
//	     (requeue on quota denial)
//
// COMPLETED and FAILED are terminal states. No transition skips
// IN_PROGRESS; the only backward edge is the quota-denied requeue.
package queue

import "fmt"

// State values mirror the task_state enum in PostgreSQL.
type State string

const (
	StateQueued     State = "QUEUED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[State][]State{
	StateQueued:     {StateInProgress},
	StateInProgress: {StateQueued, StateCompleted, StateFailed},
	// COMPLETED and FAILED are terminal — no outgoing transitions
}

// ParseState converts a raw string to a State, returning an error for
// unknown values.
func ParseState(s string) (State, error) {
	st := State(s)
	switch st {
	case StateQueued, StateInProgress, StateCompleted, StateFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown task state %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for COMPLETED and FAILED.
func IsTerminal(s State) bool {
	return s == StateCompleted || s == StateFailed
}
