// Package conversation holds a session's message history and drives
// the streaming finite-state machine that governs how partial
// provider output accumulates into committed messages.
package conversation

import "fmt"

// State is one node of the streaming state machine.
type State string

const (
	Idle       State = "idle"
	RecvText   State = "recv_text"
	RecvThink  State = "recv_think"
	ToolPend   State = "tool_pending"
	AwaitTool  State = "awaiting_tool_result"
	Completed  State = "completed"
	Error      State = "error"
)

// legalTransitions is the set of transitions checkTransition permits.
// Two Manager methods do not consult it: ClearStreaming resets to Idle
// from any state, and Fail moves to Error from any state (including
// Idle and Completed).
var legalTransitions = map[State]map[State]bool{
	Idle:      {RecvText: true, RecvThink: true},
	RecvText:  {RecvThink: true, ToolPend: true, Completed: true, Error: true},
	RecvThink: {RecvText: true, Completed: true, Error: true},
	ToolPend:  {AwaitTool: true, Error: true},
	AwaitTool: {RecvText: true, Error: true},
	Completed: {RecvText: true},
	Error:     {RecvText: true},
}

// InvalidStateTransition is returned when a caller requests a
// transition outside the legal set. It is a programmer error and must
// not be silently swallowed.
type InvalidStateTransition struct {
	From State
	To   State
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid streaming state transition: %s -> %s", e.From, e.To)
}

// transitionRecord is one bounded diagnostic history entry.
type transitionRecord struct {
	From State
	To   State
	At   int64
}

// maxTransitionHistory bounds the retained diagnostic trail.
const maxTransitionHistory = 64

// checkTransition validates from->to against the legal set, returning
// InvalidStateTransition if the pair is not permitted.
func checkTransition(from, to State) error {
	if legalTransitions[from][to] {
		return nil
	}
	return &InvalidStateTransition{From: from, To: to}
}
