// Package orchestrator defines the boundary between the executor and the
// cluster orchestrator: the callbacks the orchestrator drives, the driver the
// executor reports through, and a NATS-backed driver implementation.
package orchestrator

import (
	"context"

	"git.home.luguber.info/inful/buildexecutor/internal/task"
)

// Driver carries executor output to the orchestrator.
type Driver interface {
	SendStatusUpdate(ctx context.Context, status task.TaskStatus) error
	SendFrameworkMessage(ctx context.Context, message string) error
}

// ExecutorInfo is delivered once at registration. Data holds the serialized
// build task descriptor.
type ExecutorInfo struct {
	ExecutorID string
	Data       []byte
}

// TaskInfo identifies a launched task.
type TaskInfo struct {
	TaskID string `json:"task_id"`
	Name   string `json:"name,omitempty"`
}

// Executor receives orchestrator callbacks. Callbacks are delivered serially
// and must return promptly.
type Executor interface {
	// Registered delivers the executor's configuration. An error aborts the driver.
	Registered(ctx context.Context, driver Driver, info ExecutorInfo) error
	Reregistered(ctx context.Context, driver Driver)
	Disconnected(ctx context.Context, driver Driver)
	LaunchTask(ctx context.Context, driver Driver, info TaskInfo)
	KillTask(ctx context.Context, driver Driver, taskID string)
}

// DriverStatus is the final or current state of a driver run.
type DriverStatus int

const (
	DriverNotStarted DriverStatus = iota
	DriverRunning
	DriverStopped
	DriverAborted
)

func (s DriverStatus) String() string {
	switch s {
	case DriverNotStarted:
		return "DRIVER_NOT_STARTED"
	case DriverRunning:
		return "DRIVER_RUNNING"
	case DriverStopped:
		return "DRIVER_STOPPED"
	case DriverAborted:
		return "DRIVER_ABORTED"
	default:
		return "DRIVER_UNKNOWN"
	}
}

// ExitCode maps the status a driver run ended with to the process exit code:
// 1 for a stopped or aborted run, 0 otherwise.
func ExitCode(s DriverStatus) int {
	if s == DriverStopped || s == DriverAborted {
		return 1
	}
	return 0
}
