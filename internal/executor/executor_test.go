package executor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildexecutor/internal/dockerd"
	"git.home.luguber.info/inful/buildexecutor/internal/orchestrator"
	"git.home.luguber.info/inful/buildexecutor/internal/task"
	"git.home.luguber.info/inful/buildexecutor/internal/testdaemon"
)

const (
	withHost    = `{"context":"ctx.tar","docker_host":"10.0.0.5:2375","image":{"repository":{"username":"alice","repo_name":"web"},"tag":["v1"]}}`
	withoutHost = `{"context":"ctx.tar","image":{"repository":{"username":"alice","repo_name":"web"}}}`
)

type connectLog struct {
	mu     sync.Mutex
	addrs  []string
	client dockerd.Client
	err    error
	gate   chan struct{}
}

func (c *connectLog) connect(ctx context.Context, addr string) (dockerd.Client, error) {
	c.mu.Lock()
	c.addrs = append(c.addrs, addr)
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return c.client, c.err
}

func (c *connectLog) Addrs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.addrs...)
}

func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ctx.tar"), []byte("context"), 0o600))
	return dir
}

func register(t *testing.T, c *Controller, drv orchestrator.Driver, descriptor string) {
	t.Helper()
	require.NoError(t, c.Registered(context.Background(), drv, orchestrator.ExecutorInfo{ExecutorID: "e1", Data: []byte(descriptor)}))
}

func waitDone(t *testing.T, c *Controller) task.State {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
	}
	state, ok := c.Result()
	require.True(t, ok)
	return state
}

func TestController_ExplicitHostBuildsWithoutBootstrap(t *testing.T) {
	fake := testdaemon.Succeeding("abc123", "Step 1/1 : FROM scratch")
	conn := &connectLog{client: fake}
	c := New(Options{SandboxDir: sandbox(t), Connect: conn.connect, BootstrapPause: time.Hour})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withHost)
	assert.True(t, c.Gate().Ready(), "explicit host must make the gate ready synchronously")
	assert.Equal(t, []string{"10.0.0.5:2375"}, conn.Addrs())
	assert.Zero(t, c.workers.Active())

	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})
	assert.Equal(t, task.StateFinished, waitDone(t, c))

	assert.Equal(t, []task.State{task.StateStarting, task.StateRunning, task.StateFinished}, drv.States())
	assert.Equal(t, []string{
		"alice/web: Step 1/1 : FROM scratch",
		"alice/web: Successfully built abc123",
		"alice/web:  ---> Tag abc123 with v1",
	}, drv.Messages())
	require.NoError(t, c.Shutdown(context.Background()))
	assert.True(t, fake.Closed())
}

func TestController_BootstrapsLocalDaemon(t *testing.T) {
	fake := testdaemon.Succeeding("abc123")
	conn := &connectLog{client: fake}
	c := New(Options{SandboxDir: sandbox(t), Connect: conn.connect, BootstrapPause: time.Millisecond})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withoutHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})

	assert.Equal(t, task.StateFinished, waitDone(t, c))
	assert.Equal(t, []string{""}, conn.Addrs())
	require.Len(t, fake.Tags(), 1)
	assert.Equal(t, "latest", fake.Tags()[0].Tag)
}

func TestController_DefaultHostUsedOnlyWithoutDescriptorHost(t *testing.T) {
	conn := &connectLog{client: testdaemon.Succeeding("x")}
	c := New(Options{SandboxDir: sandbox(t), Connect: conn.connect, DefaultDockerHost: "cli-host:2375"})
	register(t, c, &orchestrator.RecordingDriver{}, withoutHost)
	assert.True(t, c.Gate().Ready())
	assert.Equal(t, []string{"cli-host:2375"}, conn.Addrs())

	conn2 := &connectLog{client: testdaemon.Succeeding("x")}
	c2 := New(Options{SandboxDir: sandbox(t), Connect: conn2.connect, DefaultDockerHost: "cli-host:2375"})
	register(t, c2, &orchestrator.RecordingDriver{}, withHost)
	assert.Equal(t, []string{"10.0.0.5:2375"}, conn2.Addrs())
}

func TestController_NoBuildBeforeGateReady(t *testing.T) {
	fake := testdaemon.Succeeding("abc123")
	conn := &connectLog{client: fake, gate: make(chan struct{})}
	c := New(Options{SandboxDir: sandbox(t), Connect: conn.connect, BootstrapPause: time.Millisecond})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withoutHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})

	// LaunchTask returned while the daemon is still unavailable.
	assert.Equal(t, []task.State{task.StateStarting}, drv.States())
	assert.Never(t, func() bool {
		return fake.Builds() > 0 || len(drv.States()) > 1
	}, 100*time.Millisecond, 10*time.Millisecond)

	close(conn.gate)
	assert.Equal(t, task.StateFinished, waitDone(t, c))
	assert.Equal(t, []task.State{task.StateStarting, task.StateRunning, task.StateFinished}, drv.States())
}

func TestController_RunningReportedBeforeBuild(t *testing.T) {
	fake := testdaemon.Succeeding("abc123")
	drv := &orchestrator.RecordingDriver{}
	var statesAtBuild []task.State
	fake.OnBuild = func() { statesAtBuild = drv.States() }

	c := New(Options{SandboxDir: sandbox(t), Connect: (&connectLog{client: fake}).connect})
	register(t, c, drv, withHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})
	waitDone(t, c)

	assert.Equal(t, []task.State{task.StateStarting, task.StateRunning}, statesAtBuild)
}

func TestController_MissingContextFails(t *testing.T) {
	fake := testdaemon.Succeeding("abc123")
	c := New(Options{SandboxDir: t.TempDir(), Connect: (&connectLog{client: fake}).connect})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})

	assert.Equal(t, task.StateFailed, waitDone(t, c))
	assert.Equal(t, []task.State{task.StateStarting, task.StateRunning, task.StateFailed}, drv.States())
	assert.Zero(t, fake.Builds())
}

func TestController_NoImageIDFails(t *testing.T) {
	fake := testdaemon.NewFakeClient(testdaemon.Stream("Step 1/1 : FROM scratch\n"))
	c := New(Options{SandboxDir: sandbox(t), Connect: (&connectLog{client: fake}).connect})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})

	assert.Equal(t, task.StateFailed, waitDone(t, c))
	assert.Empty(t, fake.Tags())
}

func TestController_TagFailureFails(t *testing.T) {
	fake := testdaemon.Succeeding("abc123")
	fake.TagErrors = map[string]error{"v1": errors.New("conflict")}
	c := New(Options{SandboxDir: sandbox(t), Connect: (&connectLog{client: fake}).connect})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})

	assert.Equal(t, task.StateFailed, waitDone(t, c))
	assert.Equal(t, task.StateFailed, drv.States()[len(drv.States())-1])
}

func TestController_BootstrapFailureFailsWithoutRunning(t *testing.T) {
	conn := &connectLog{err: errors.New("no socket")}
	c := New(Options{SandboxDir: sandbox(t), Connect: conn.connect, BootstrapPause: time.Millisecond})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withoutHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})

	assert.Equal(t, task.StateFailed, waitDone(t, c))
	assert.Equal(t, []task.State{task.StateStarting, task.StateFailed}, drv.States())
	assert.NotEmpty(t, drv.Statuses()[1].Message)
}

func TestController_LaunchBeforeRegistration(t *testing.T) {
	c := New(Options{SandboxDir: sandbox(t)})
	drv := &orchestrator.RecordingDriver{}

	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})
	assert.Equal(t, []task.State{task.StateFailed}, drv.States())
	_, finished := c.Result()
	assert.False(t, finished)
}

func TestController_SecondLaunchRefused(t *testing.T) {
	fake := testdaemon.Succeeding("abc123")
	c := New(Options{SandboxDir: sandbox(t), Connect: (&connectLog{client: fake}).connect})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t2"})
	assert.Equal(t, task.StateFinished, waitDone(t, c))
	require.NoError(t, c.Shutdown(context.Background()))

	var t1, t2 []task.State
	for _, s := range drv.Statuses() {
		switch s.TaskID {
		case "t1":
			t1 = append(t1, s.State)
		case "t2":
			t2 = append(t2, s.State)
		}
	}
	assert.Equal(t, []task.State{task.StateStarting, task.StateRunning, task.StateFinished}, t1)
	assert.Equal(t, []task.State{task.StateFailed}, t2)
	assert.Equal(t, 1, fake.Builds())
}

func TestController_RedeliveredLaunchIsIgnored(t *testing.T) {
	fake := testdaemon.Succeeding("abc123")
	conn := &connectLog{client: fake, gate: make(chan struct{})}
	c := New(Options{SandboxDir: sandbox(t), Connect: conn.connect, BootstrapPause: time.Millisecond})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withoutHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})
	assert.Equal(t, []task.State{task.StateStarting}, drv.States())

	close(conn.gate)
	assert.Equal(t, task.StateFinished, waitDone(t, c))
	require.NoError(t, c.Shutdown(context.Background()))

	assert.Equal(t, []task.State{task.StateStarting, task.StateRunning, task.StateFinished}, drv.States())
	assert.Equal(t, 1, fake.Builds())
}

func TestController_RegisteredRejectsBadDescriptor(t *testing.T) {
	c := New(Options{SandboxDir: sandbox(t)})
	err := c.Registered(context.Background(), &orchestrator.RecordingDriver{}, orchestrator.ExecutorInfo{Data: []byte("{not json")})
	require.Error(t, err)
	assert.False(t, c.Gate().Ready())
}

func TestController_KillIsIgnored(t *testing.T) {
	fake := testdaemon.Succeeding("abc123")
	c := New(Options{SandboxDir: sandbox(t), Connect: (&connectLog{client: fake}).connect})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})
	c.KillTask(context.Background(), drv, "t1")
	c.Disconnected(context.Background(), drv)
	c.Reregistered(context.Background(), drv)

	assert.Equal(t, task.StateFinished, waitDone(t, c))
}

func TestController_ShutdownReportsUnfinishedUnits(t *testing.T) {
	var logs bytes.Buffer
	conn := &connectLog{client: testdaemon.Succeeding("abc123"), gate: make(chan struct{})}
	c := New(Options{
		SandboxDir:     sandbox(t),
		Connect:        conn.connect,
		BootstrapPause: time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(&logs, nil)),
	})
	drv := &orchestrator.RecordingDriver{}

	register(t, c, drv, withoutHost)
	c.LaunchTask(context.Background(), drv, orchestrator.TaskInfo{TaskID: "t1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Shutdown(ctx), context.DeadlineExceeded)
	assert.Contains(t, logs.String(), "Background units still running at shutdown")
	assert.Contains(t, logs.String(), "active=2")

	close(conn.gate)
	assert.Equal(t, task.StateFinished, waitDone(t, c))
}

func TestWorkerGroup_StopRefusesNewUnits(t *testing.T) {
	var g WorkerGroup
	release := make(chan struct{})
	require.True(t, g.Go(func() { <-release }))
	assert.Equal(t, 1, g.Active())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.StopAndWait(ctx), context.DeadlineExceeded)
	assert.False(t, g.Go(func() {}))

	close(release)
	require.NoError(t, g.StopAndWait(context.Background()))
	assert.Zero(t, g.Active())
}
