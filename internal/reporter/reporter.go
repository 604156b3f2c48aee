// Package reporter sends task status transitions and progress messages to
// the orchestrator. It never fails its caller: transport problems are
// logged, and transitions that would break the STARTING, RUNNING, terminal
// ordering are dropped.
package reporter

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/buildexecutor/internal/logfields"
	"git.home.luguber.info/inful/buildexecutor/internal/metrics"
	"git.home.luguber.info/inful/buildexecutor/internal/observability"
	"git.home.luguber.info/inful/buildexecutor/internal/orchestrator"
	"git.home.luguber.info/inful/buildexecutor/internal/task"
)

// Journal receives a copy of everything reported.
type Journal interface {
	Append(ctx context.Context, taskID, kind string, payload any) error
}

// Journal entry kinds, matching the journal package.
const (
	journalStatus   = "status"
	journalProgress = "progress"
)

// Reporter relays task status to a Driver.
type Reporter struct {
	driver   orchestrator.Driver
	recorder metrics.Recorder
	journal  Journal
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]task.State
}

// Option configures a Reporter.
type Option func(*Reporter)

func WithRecorder(r metrics.Recorder) Option {
	return func(rep *Reporter) {
		if r != nil {
			rep.recorder = r
		}
	}
}

// WithJournal mirrors every report into j.
func WithJournal(j Journal) Option {
	return func(rep *Reporter) { rep.journal = j }
}

func WithLogger(l *slog.Logger) Option {
	return func(rep *Reporter) {
		if l != nil {
			rep.logger = l
		}
	}
}

// New returns a reporter sending through driver.
func New(driver orchestrator.Driver, opts ...Option) *Reporter {
	r := &Reporter{
		driver:   driver,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		last:     make(map[string]task.State),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report sends state for taskID. It returns false when the transition was
// refused; transport failures still count as reported.
func (r *Reporter) Report(ctx context.Context, taskID string, state task.State) bool {
	return r.ReportStatus(ctx, task.NewStatus(taskID, state))
}

// ReportStatus is Report with a caller-built status, e.g. one carrying a message.
func (r *Reporter) ReportStatus(ctx context.Context, status task.TaskStatus) bool {
	ctx = observability.WithTaskID(ctx, status.TaskID)

	r.mu.Lock()
	prev := r.last[status.TaskID]
	if !task.CanTransition(prev, status.State) {
		r.mu.Unlock()
		observability.Log(ctx, r.logger, slog.LevelWarn, "Dropping out-of-order task update",
			slog.String("from", prev.String()),
			logfields.TaskState(status.State.String()))
		return false
	}
	r.last[status.TaskID] = status.State
	r.mu.Unlock()

	observability.Log(ctx, r.logger, slog.LevelInfo, "Sending task update",
		logfields.TaskState(status.State.String()))
	r.recorder.IncTaskState(status.State.String())

	if err := r.driver.SendStatusUpdate(ctx, status); err != nil {
		observability.Log(ctx, r.logger, slog.LevelError, "Task update not delivered",
			logfields.TaskState(status.State.String()), logfields.Error(err))
	}
	r.journalAppend(ctx, status.TaskID, journalStatus, status)
	return true
}

func (r *Reporter) lastState(taskID string) task.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[taskID]
}

// Progress forwards a human-readable line. Delivery is best effort.
func (r *Reporter) Progress(ctx context.Context, text string) {
	r.recorder.IncProgressMessages()
	if err := r.driver.SendFrameworkMessage(ctx, text); err != nil {
		observability.Log(ctx, r.logger, slog.LevelDebug, "Progress message not delivered", logfields.Error(err))
	}
	taskID := observability.GetContext(ctx).TaskID
	r.journalAppend(ctx, taskID, journalProgress, text)
}

func (r *Reporter) journalAppend(ctx context.Context, taskID, kind string, payload any) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(ctx, taskID, kind, payload); err != nil {
		observability.Log(ctx, r.logger, slog.LevelWarn, "Journal append failed", logfields.Error(err))
	}
}
