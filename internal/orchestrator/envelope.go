package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Control message kinds on the control subject.
const (
	KindRegistered = "registered"
	KindLaunch     = "launch"
	KindKill       = "kill"
	KindShutdown   = "shutdown"
)

// Envelope is a control message from the orchestrator.
type Envelope struct {
	Kind     string           `json:"kind"`
	Executor *ExecutorPayload `json:"executor,omitempty"`
	Task     *TaskInfo        `json:"task,omitempty"`
}

// ExecutorPayload is the wire form of ExecutorInfo. Data is either an
// embedded JSON descriptor or a string holding a JSON or YAML descriptor.
type ExecutorPayload struct {
	ExecutorID string          `json:"executor_id"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses and checks a control message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode control message: %w", err)
	}
	switch env.Kind {
	case KindRegistered:
		if env.Executor == nil {
			return env, fmt.Errorf("%s message without executor", env.Kind)
		}
	case KindLaunch, KindKill:
		if env.Task == nil || env.Task.TaskID == "" {
			return env, fmt.Errorf("%s message without task id", env.Kind)
		}
	case KindShutdown:
	default:
		return env, fmt.Errorf("unknown control message kind %q", env.Kind)
	}
	return env, nil
}

// Info converts the payload to an ExecutorInfo.
func (p ExecutorPayload) Info() (ExecutorInfo, error) {
	info := ExecutorInfo{ExecutorID: p.ExecutorID}
	raw := bytes.TrimSpace(p.Data)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return info, fmt.Errorf("decode executor data: %w", err)
		}
		info.Data = []byte(s)
		return info, nil
	}
	info.Data = append([]byte(nil), raw...)
	return info, nil
}

// Subjects names the NATS subjects used by one executor.
type Subjects struct {
	Control string
	Status  string
	Message string
}

// SubjectsFor derives the subjects for executorID under prefix.
func SubjectsFor(prefix, executorID string) Subjects {
	base := prefix + "." + executorID
	return Subjects{
		Control: base + ".control",
		Status:  base + ".status",
		Message: base + ".message",
	}
}

// StatusWildcard matches the status subjects of every executor under prefix.
func StatusWildcard(prefix string) string {
	return prefix + ".*.status"
}
