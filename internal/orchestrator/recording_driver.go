package orchestrator

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/buildexecutor/internal/task"
)

// RecordingDriver is an in-memory Driver that keeps everything sent through
// it. Used by tests and by dry runs without an orchestrator.
type RecordingDriver struct {
	mu       sync.Mutex
	statuses []task.TaskStatus
	messages []string

	// StatusErr and MessageErr are returned after recording.
	StatusErr  error
	MessageErr error
	// OnStatus is called with each status after it is recorded.
	OnStatus func(task.TaskStatus)
}

var _ Driver = (*RecordingDriver)(nil)

func (r *RecordingDriver) SendStatusUpdate(_ context.Context, status task.TaskStatus) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	hook, err := r.OnStatus, r.StatusErr
	r.mu.Unlock()
	if hook != nil {
		hook(status)
	}
	return err
}

func (r *RecordingDriver) SendFrameworkMessage(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.MessageErr
}

// Statuses returns the recorded statuses in send order.
func (r *RecordingDriver) Statuses() []task.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]task.TaskStatus(nil), r.statuses...)
}

// States returns only the states of the recorded statuses.
func (r *RecordingDriver) States() []task.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]task.State, len(r.statuses))
	for i, s := range r.statuses {
		states[i] = s.State
	}
	return states
}

// Messages returns the recorded framework messages in send order.
func (r *RecordingDriver) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
