// Package executor implements the task lifecycle controller: it receives the
// build task at registration, makes a daemon client available and runs
// exactly one build per process, reporting STARTING, RUNNING and a terminal
// state.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildexecutor/internal/build"
	"git.home.luguber.info/inful/buildexecutor/internal/dockerd"
	"git.home.luguber.info/inful/buildexecutor/internal/logfields"
	"git.home.luguber.info/inful/buildexecutor/internal/metrics"
	"git.home.luguber.info/inful/buildexecutor/internal/observability"
	"git.home.luguber.info/inful/buildexecutor/internal/orchestrator"
	"git.home.luguber.info/inful/buildexecutor/internal/reporter"
	"git.home.luguber.info/inful/buildexecutor/internal/task"
)

// ConnectFunc builds a daemon client for addr; an empty addr means the
// local daemon.
type ConnectFunc func(ctx context.Context, addr string) (dockerd.Client, error)

// Options configures a Controller.
type Options struct {
	// SandboxDir resolves task contexts; defaults to the working directory.
	SandboxDir string
	// DefaultDockerHost is used when the descriptor names no daemon.
	DefaultDockerHost string
	// BootstrapPause is the local daemon wait; defaults to dockerd.DefaultPause.
	BootstrapPause time.Duration
	Connect        ConnectFunc
	Pipeline       *build.Pipeline
	Recorder       metrics.Recorder
	Journal        reporter.Journal
	Logger         *slog.Logger
}

// Controller is the orchestrator.Executor for one build task.
type Controller struct {
	opts    Options
	gate    *dockerd.Gate
	workers WorkerGroup

	mu         sync.Mutex
	buildTask  *task.BuildTask
	executorID string
	rep        *reporter.Reporter
	launched   string
	result     task.State
	finished   bool
	done       chan struct{}
}

var _ orchestrator.Executor = (*Controller)(nil)

// New returns a controller in the UNASSIGNED state.
func New(opts Options) *Controller {
	if opts.SandboxDir == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.SandboxDir = wd
		}
	}
	if opts.Connect == nil {
		opts.Connect = func(_ context.Context, addr string) (dockerd.Client, error) {
			return dockerd.NewDockerClient(addr)
		}
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pipeline == nil {
		opts.Pipeline = build.NewPipeline(build.WithRecorder(opts.Recorder), build.WithLogger(opts.Logger))
	}
	return &Controller{
		opts: opts,
		gate: dockerd.NewGate(),
		done: make(chan struct{}),
	}
}

// Gate exposes the daemon readiness gate.
func (c *Controller) Gate() *dockerd.Gate { return c.gate }

// Registered decodes and stores the build task, then makes a daemon client
// available: synchronously for an explicit address, otherwise through the
// bootstrap on a background unit.
func (c *Controller) Registered(ctx context.Context, _ orchestrator.Driver, info orchestrator.ExecutorInfo) error {
	ctx = observability.WithExecutorID(ctx, info.ExecutorID)
	bt, err := task.Decode(info.Data)
	if err != nil {
		observability.Log(ctx, c.opts.Logger, slog.LevelError, "Failed to parse build task in executor data", logfields.Error(err))
		return err
	}

	c.mu.Lock()
	if c.buildTask != nil {
		c.mu.Unlock()
		observability.Log(ctx, c.opts.Logger, slog.LevelWarn, "Executor already registered, keeping the first build task")
		return nil
	}
	c.buildTask = bt
	c.executorID = info.ExecutorID
	c.mu.Unlock()

	observability.Log(ctx, c.opts.Logger, slog.LevelInfo, "Registered build task",
		logfields.Image(bt.ImageName()), logfields.Context(bt.Context))

	addr := c.opts.DefaultDockerHost
	if bt.HasDockerHost() {
		addr = bt.DaemonAddress()
	}
	if addr != "" {
		client, err := c.opts.Connect(ctx, addr)
		if err != nil {
			observability.Log(ctx, c.opts.Logger, slog.LevelError, "Cannot create daemon client",
				logfields.DockerHost(addr), logfields.Error(err))
			c.gate.Fail(err)
			return nil
		}
		c.gate.Set(client)
		observability.Log(ctx, c.opts.Logger, slog.LevelInfo, "Using explicit daemon", logfields.DockerHost(addr))
		return nil
	}

	boot := &dockerd.Bootstrapper{
		Gate: c.gate,
		Connect: func(ctx context.Context) (dockerd.Client, error) {
			return c.opts.Connect(ctx, "")
		},
		Pause:  c.opts.BootstrapPause,
		Logger: c.opts.Logger,
	}
	bgctx := context.WithoutCancel(ctx)
	if !c.workers.Go(func() { _ = boot.Run(bgctx) }) {
		c.gate.Fail(fmt.Errorf("executor is shutting down"))
	}
	return nil
}

func (c *Controller) Reregistered(ctx context.Context, _ orchestrator.Driver) {
	observability.Log(ctx, c.opts.Logger, slog.LevelInfo, "Executor re-registered")
}

func (c *Controller) Disconnected(ctx context.Context, _ orchestrator.Driver) {
	observability.Log(ctx, c.opts.Logger, slog.LevelWarn, "Executor disconnected from orchestrator")
}

// LaunchTask reports STARTING and starts the build unit. It returns without
// waiting for the daemon or the build.
func (c *Controller) LaunchTask(ctx context.Context, driver orchestrator.Driver, info orchestrator.TaskInfo) {
	ctx = observability.WithTaskID(ctx, info.TaskID)
	rep := c.reporterFor(driver)
	observability.Log(ctx, c.opts.Logger, slog.LevelInfo, "Launched task")

	c.mu.Lock()
	bt := c.buildTask
	if c.executorID != "" {
		ctx = observability.WithExecutorID(ctx, c.executorID)
	}
	switch {
	case bt == nil:
		c.mu.Unlock()
		observability.Log(ctx, c.opts.Logger, slog.LevelError, "Task launched before registration")
		rep.ReportStatus(ctx, failedStatus(info.TaskID, "executor has no build task"))
		return
	case c.launched == info.TaskID:
		c.mu.Unlock()
		observability.Log(ctx, c.opts.Logger, slog.LevelWarn, "Ignoring repeated launch of the running task")
		return
	case c.launched != "":
		first := c.launched
		c.mu.Unlock()
		observability.Log(ctx, c.opts.Logger, slog.LevelError, "Refusing second task", slog.String("running_task", first))
		rep.ReportStatus(ctx, failedStatus(info.TaskID, "executor already runs task "+first))
		return
	}
	c.launched = info.TaskID
	c.mu.Unlock()

	rep.Report(ctx, info.TaskID, task.StateStarting)

	bgctx := context.WithoutCancel(ctx)
	if !c.workers.Go(func() { c.runBuild(bgctx, rep, info.TaskID, bt) }) {
		rep.ReportStatus(ctx, failedStatus(info.TaskID, "executor is shutting down"))
		c.finish(task.StateFailed)
	}
}

// KillTask is accepted and ignored; a running build is not interrupted.
func (c *Controller) KillTask(ctx context.Context, _ orchestrator.Driver, taskID string) {
	observability.Log(ctx, c.opts.Logger, slog.LevelInfo, "Kill requested, builds are not interruptible",
		logfields.TaskID(taskID))
}

func (c *Controller) runBuild(ctx context.Context, rep *reporter.Reporter, taskID string, bt *task.BuildTask) {
	waitStart := time.Now()
	client, err := c.gate.Wait()
	c.opts.Recorder.ObserveDaemonWait(time.Since(waitStart))
	if err != nil {
		observability.Log(ctx, c.opts.Logger, slog.LevelError, "No container daemon available", logfields.Error(err))
		rep.ReportStatus(ctx, failedStatus(taskID, err.Error()))
		c.finish(task.StateFailed)
		return
	}

	rep.Report(ctx, taskID, task.StateRunning)
	state := c.opts.Pipeline.Build(ctx, bt, c.opts.SandboxDir, client, rep)
	rep.Report(ctx, taskID, state)
	c.finish(state)
}

func (c *Controller) finish(state task.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.result = state
	c.finished = true
	close(c.done)
}

// Done is closed once the launched task reached a terminal state.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Result returns the terminal state and whether the task has finished.
func (c *Controller) Result() (task.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.finished
}

// Shutdown waits for background units, bounded by ctx, and releases the
// daemon client.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.workers.StopAndWait(ctx)
	if err != nil {
		c.opts.Logger.Warn("Background units still running at shutdown",
			slog.Int("active", c.workers.Active()), logfields.Error(err))
	}
	if client, ok := c.gate.Client(); ok {
		_ = client.Close()
	}
	return err
}

func (c *Controller) reporterFor(driver orchestrator.Driver) *reporter.Reporter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rep == nil {
		opts := []reporter.Option{
			reporter.WithRecorder(c.opts.Recorder),
			reporter.WithLogger(c.opts.Logger),
		}
		if c.opts.Journal != nil {
			opts = append(opts, reporter.WithJournal(c.opts.Journal))
		}
		c.rep = reporter.New(driver, opts...)
	}
	return c.rep
}

func failedStatus(taskID, message string) task.TaskStatus {
	st := task.NewStatus(taskID, task.StateFailed)
	st.Message = message
	return st
}
