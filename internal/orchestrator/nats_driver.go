package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/buildexecutor/internal/errors"
	"git.home.luguber.info/inful/buildexecutor/internal/logfields"
	"git.home.luguber.info/inful/buildexecutor/internal/metrics"
	"git.home.luguber.info/inful/buildexecutor/internal/retry"
	"git.home.luguber.info/inful/buildexecutor/internal/task"
)

// NATSConfig configures a NATSDriver.
type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	ExecutorID     string
	CreateStream   bool
	StreamName     string
	ConnectTimeout time.Duration
	PublishRetry   retry.Policy
}

type eventKind int

const (
	evControl eventKind = iota
	evDisconnected
	evReconnected
	evClosed
)

type event struct {
	kind eventKind
	data []byte
}

// publisher sends encoded payloads. Statuses go through JetStream so they are
// persisted; progress messages use core NATS.
type publisher interface {
	PublishStatus(ctx context.Context, subject string, data []byte) error
	Publish(subject string, data []byte) error
}

type natsPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

func (p natsPublisher) PublishStatus(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.Publish(ctx, subject, data)
	return err
}

func (p natsPublisher) Publish(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// NATSDriver connects an Executor to the orchestrator over NATS. Control
// messages arrive on the control subject and are dispatched to the executor
// one at a time.
type NATSDriver struct {
	cfg      NATSConfig
	subjects Subjects
	exec     Executor
	recorder metrics.Recorder
	logger   *slog.Logger

	// connect establishes the transport; replaced in tests.
	connect func(ctx context.Context) error

	mu       sync.Mutex
	pub      publisher
	conn     *nats.Conn
	sub      *nats.Subscription
	status   DriverStatus
	stopping bool

	events   chan event
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

var _ Driver = (*NATSDriver)(nil)

// NATSOption configures a NATSDriver.
type NATSOption func(*NATSDriver)

func WithRecorder(r metrics.Recorder) NATSOption {
	return func(d *NATSDriver) {
		if r != nil {
			d.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) NATSOption {
	return func(d *NATSDriver) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewNATSDriver creates a driver for exec. Nothing connects until Run.
func NewNATSDriver(exec Executor, cfg NATSConfig, opts ...NATSOption) *NATSDriver {
	if cfg.PublishRetry.Initial <= 0 {
		cfg.PublishRetry = retry.DefaultPolicy()
	}
	d := &NATSDriver{
		cfg:      cfg,
		subjects: SubjectsFor(cfg.SubjectPrefix, cfg.ExecutorID),
		exec:     exec,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		events:   make(chan event, 64),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	d.connect = d.dial
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subjects returns the subjects this driver uses.
func (d *NATSDriver) Subjects() Subjects { return d.subjects }

// Status returns the driver's current status.
func (d *NATSDriver) Status() DriverStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *NATSDriver) setStatus(s DriverStatus) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func (d *NATSDriver) dial(ctx context.Context) error {
	timeout := d.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = nats.DefaultTimeout
	}

	conn, err := nats.Connect(d.cfg.URL,
		nats.Name("build-executor "+d.cfg.ExecutorID),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				d.logger.Warn("NATS connection lost", logfields.Error(err))
			}
			d.enqueue(event{kind: evDisconnected})
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			d.enqueue(event{kind: evReconnected})
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			d.enqueue(event{kind: evClosed})
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if d.cfg.CreateStream {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
			Name:        d.cfg.StreamName,
			Description: "Build executor task status updates",
			Subjects:    []string{StatusWildcard(d.cfg.SubjectPrefix)},
		})
		cancel()
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create status stream: %w", err)
		}
	}

	sub, err := conn.Subscribe(d.subjects.Control, func(m *nats.Msg) {
		d.enqueue(event{kind: evControl, data: m.Data})
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", d.subjects.Control, err)
	}

	d.mu.Lock()
	d.conn, d.sub = conn, sub
	d.pub = natsPublisher{conn: conn, js: js}
	d.mu.Unlock()

	d.logger.Info("NATS driver connected",
		slog.String("url", d.cfg.URL),
		logfields.Subject(d.subjects.Control),
		logfields.ExecutorID(d.cfg.ExecutorID))
	return nil
}

// Run connects and dispatches callbacks until the driver is stopped or
// aborted, returning the final status.
func (d *NATSDriver) Run(ctx context.Context) DriverStatus {
	defer close(d.finished)

	if err := d.connect(ctx); err != nil {
		d.logger.Error("Orchestrator driver failed to start", logfields.Error(err))
		d.setStatus(DriverAborted)
		return DriverAborted
	}
	d.setStatus(DriverRunning)

	status := d.loop(ctx)

	d.mu.Lock()
	d.stopping = true
	conn, sub := d.conn, d.sub
	d.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	if conn != nil {
		_ = conn.Flush()
		conn.Close()
	}

	d.setStatus(status)
	d.logger.Info("Orchestrator driver finished", slog.String("status", status.String()))
	return status
}

// Stop ends Run with DriverStopped. It is safe to call more than once.
func (d *NATSDriver) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *NATSDriver) loop(ctx context.Context) DriverStatus {
	for {
		select {
		case <-ctx.Done():
			return DriverStopped
		case <-d.stop:
			return DriverStopped
		case ev := <-d.events:
			if status, done := d.handle(ctx, ev); done {
				return status
			}
		}
	}
}

func (d *NATSDriver) enqueue(ev event) {
	select {
	case d.events <- ev:
	case <-d.stop:
	case <-d.finished:
	}
}

func (d *NATSDriver) handle(ctx context.Context, ev event) (DriverStatus, bool) {
	switch ev.kind {
	case evDisconnected:
		d.exec.Disconnected(ctx, d)
	case evReconnected:
		d.exec.Reregistered(ctx, d)
	case evClosed:
		d.mu.Lock()
		stopping := d.stopping
		d.mu.Unlock()
		if stopping {
			return DriverStopped, true
		}
		d.logger.Error("NATS connection closed")
		return DriverAborted, true
	case evControl:
		return d.dispatch(ctx, ev.data)
	}
	return DriverRunning, false
}

func (d *NATSDriver) dispatch(ctx context.Context, data []byte) (DriverStatus, bool) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		d.logger.Warn("Ignoring control message", logfields.Error(err))
		return DriverRunning, false
	}

	switch env.Kind {
	case KindRegistered:
		info, err := env.Executor.Info()
		if err == nil {
			err = d.exec.Registered(ctx, d, info)
		}
		if err != nil {
			d.logger.Error("Executor registration failed", logfields.Error(err))
			return DriverAborted, true
		}
	case KindLaunch:
		d.exec.LaunchTask(ctx, d, *env.Task)
	case KindKill:
		d.exec.KillTask(ctx, d, env.Task.TaskID)
	case KindShutdown:
		d.logger.Info("Shutdown requested by orchestrator")
		return DriverStopped, true
	}
	return DriverRunning, false
}

// SendStatusUpdate publishes status through JetStream, retrying transient
// failures per the configured policy.
func (d *NATSDriver) SendStatusUpdate(ctx context.Context, status task.TaskStatus) error {
	pub := d.publisher()
	if pub == nil {
		return errors.PublishFailed(d.subjects.Status, fmt.Errorf("driver not connected"))
	}
	data, err := json.Marshal(status)
	if err != nil {
		return errors.InternalError("encode task status", err)
	}

	err = d.cfg.PublishRetry.Do(ctx, func(ctx context.Context) error {
		return pub.PublishStatus(ctx, d.subjects.Status, data)
	}, func(attempt int, err error) {
		d.recorder.IncPublishRetry("status")
		d.logger.Warn("Retrying status publish",
			logfields.Subject(d.subjects.Status),
			slog.Int("attempt", attempt),
			logfields.Error(err))
	})
	if err != nil {
		return errors.PublishFailed(d.subjects.Status, err)
	}
	return nil
}

// SendFrameworkMessage publishes a progress line with core NATS.
func (d *NATSDriver) SendFrameworkMessage(_ context.Context, message string) error {
	pub := d.publisher()
	if pub == nil {
		return errors.PublishFailed(d.subjects.Message, fmt.Errorf("driver not connected"))
	}
	if err := pub.Publish(d.subjects.Message, []byte(message)); err != nil {
		return errors.PublishFailed(d.subjects.Message, err)
	}
	return nil
}

func (d *NATSDriver) publisher() publisher {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pub
}
