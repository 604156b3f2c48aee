package task

import (
	"fmt"
	"time"
)

// State is a task lifecycle state.
type State int

const (
	// StateUnassigned is the state before registration. It is never reported.
	StateUnassigned State = iota
	StateStarting
	StateRunning
	StateFinished
	StateFailed
)

var stateNames = map[State]string{
	StateUnassigned: "UNASSIGNED",
	StateStarting:   "STARTING",
	StateRunning:    "RUNNING",
	StateFinished:   "FINISHED",
	StateFailed:     "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal reports whether no further status may follow s.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown task state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown task state %q", string(text))
}

// CanTransition reports whether a status for "to" may be sent after "from".
// Reported states follow STARTING, RUNNING, then one terminal state; any of
// them may be skipped, none may repeat, and nothing follows a terminal state.
func CanTransition(from, to State) bool {
	if from.IsTerminal() || to == StateUnassigned {
		return false
	}
	if to.IsTerminal() {
		return true
	}
	return to > from
}

// TaskStatus is a state transition record sent to the orchestrator.
type TaskStatus struct {
	TaskID    string    `json:"task_id"`
	State     State     `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStatus creates a status record stamped with the current time.
func NewStatus(taskID string, state State) TaskStatus {
	return TaskStatus{
		TaskID:    taskID,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
}
