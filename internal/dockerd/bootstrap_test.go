package dockerd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executorerrors "git.home.luguber.info/inful/buildexecutor/internal/errors"
)

func noSleep(slept *time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept += d
		return nil
	}
}

func TestBootstrapper_PausesThenConnects(t *testing.T) {
	g := NewGate()
	var slept time.Duration
	want := &stubClient{}
	b := &Bootstrapper{
		Gate:    g,
		Connect: func(context.Context) (Client, error) { return want, nil },
		Sleep:   noSleep(&slept),
	}

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, DefaultPause, slept)
	c, ok := g.Client()
	require.True(t, ok)
	assert.Same(t, want, c)
}

func TestBootstrapper_SkipsWhenAlreadyUp(t *testing.T) {
	g := NewGate()
	existing := &stubClient{}
	require.True(t, g.Set(existing))

	var connects atomic.Int32
	var slept time.Duration
	b := &Bootstrapper{
		Gate: g,
		Connect: func(context.Context) (Client, error) {
			connects.Add(1)
			return &stubClient{}, nil
		},
		Sleep: noSleep(&slept),
	}

	require.NoError(t, b.Run(context.Background()))
	require.NoError(t, b.Run(context.Background()))
	assert.Zero(t, connects.Load())
	assert.Zero(t, slept)
	c, _ := g.Client()
	assert.Same(t, existing, c)
}

func TestBootstrapper_ClientSetDuringPauseIsKept(t *testing.T) {
	g := NewGate()
	existing := &stubClient{}
	var connects atomic.Int32
	b := &Bootstrapper{
		Gate: g,
		Connect: func(context.Context) (Client, error) {
			connects.Add(1)
			return &stubClient{}, nil
		},
		Sleep: func(context.Context, time.Duration) error {
			g.Set(existing)
			return nil
		},
		Pause: time.Millisecond,
	}

	require.NoError(t, b.Run(context.Background()))
	assert.Zero(t, connects.Load())
	c, _ := g.Client()
	assert.Same(t, existing, c)
}

func TestBootstrapper_ConnectFailureReleasesWaiters(t *testing.T) {
	g := NewGate()
	var slept time.Duration
	b := &Bootstrapper{
		Gate:    g,
		Connect: func(context.Context) (Client, error) { return nil, errors.New("socket missing") },
		Sleep:   noSleep(&slept),
		Pause:   time.Second,
	}

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.True(t, executorerrors.IsCategory(err, executorerrors.CategoryDaemon))

	_, waitErr := g.Wait()
	require.Error(t, waitErr)
	assert.False(t, g.Ready())
	assert.Equal(t, time.Second, slept)
}

func TestBootstrapper_CancelledDuringPause(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &Bootstrapper{
		Gate:    g,
		Connect: func(context.Context) (Client, error) { return &stubClient{}, nil },
		Pause:   time.Hour,
	}

	err := b.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	_, waitErr := g.Wait()
	assert.Error(t, waitErr)
}
