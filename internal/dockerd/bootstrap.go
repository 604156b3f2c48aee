package dockerd

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildexecutor/internal/errors"
	"git.home.luguber.info/inful/buildexecutor/internal/logfields"
)

// DefaultPause is how long the bootstrap waits for a local daemon to come up.
const DefaultPause = 10 * time.Second

// ConnectFunc constructs a client for the local daemon.
type ConnectFunc func(ctx context.Context) (Client, error)

// Bootstrapper makes a local daemon client available on Gate. It does not
// start the daemon; it waits a fixed pause and then connects.
type Bootstrapper struct {
	Gate    *Gate
	Connect ConnectFunc
	Pause   time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Run performs the bootstrap once. It returns immediately when the gate is
// already up, and never replaces an existing client.
func (b *Bootstrapper) Run(ctx context.Context) error {
	logger := b.logger()
	if b.Gate.Ready() {
		logger.Debug("Daemon already available, skipping bootstrap")
		return nil
	}

	pause := b.Pause
	if pause <= 0 {
		pause = DefaultPause
	}
	logger.Info("Waiting for local container daemon", logfields.DurationMS(float64(pause.Milliseconds())))
	if err := b.sleep(ctx, pause); err != nil {
		b.Gate.Fail(errors.DaemonUnavailable(err))
		return err
	}

	if b.Gate.Ready() {
		return nil
	}

	c, err := b.Connect(ctx)
	if err != nil {
		err = errors.DaemonUnavailable(err)
		logger.Error("Daemon bootstrap failed", logfields.Error(err))
		b.Gate.Fail(err)
		return err
	}
	if !b.Gate.Set(c) {
		_ = c.Close()
		return nil
	}
	logger.Info("Container daemon ready")
	return nil
}

func (b *Bootstrapper) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *Bootstrapper) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
