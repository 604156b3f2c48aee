package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/buildexecutor/internal/config"
	"git.home.luguber.info/inful/buildexecutor/internal/dockerd"
	"git.home.luguber.info/inful/buildexecutor/internal/executor"
	"git.home.luguber.info/inful/buildexecutor/internal/journal"
	"git.home.luguber.info/inful/buildexecutor/internal/logfields"
	"git.home.luguber.info/inful/buildexecutor/internal/metrics"
	"git.home.luguber.info/inful/buildexecutor/internal/orchestrator"
	"git.home.luguber.info/inful/buildexecutor/internal/retry"
	"git.home.luguber.info/inful/buildexecutor/internal/version"
)

const shutdownTimeout = 30 * time.Second

// RunCmd implements the 'run' command.
type RunCmd struct {
	DockerHost  string `name:"docker-host" help:"Daemon address used when the task names none; otherwise a local daemon is bootstrapped" env:"BUILD_EXECUTOR_DOCKER_HOST"`
	NATSURL     string `name:"nats-url" help:"Orchestrator NATS URL" env:"BUILD_EXECUTOR_NATS_URL"`
	ExecutorID  string `name:"executor-id" help:"Executor identifier used in subjects" env:"BUILD_EXECUTOR_ID"`
	MetricsAddr string `name:"metrics-addr" help:"Listen address for the Prometheus endpoint"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if err := r.apply(cfg); err != nil {
		return err
	}

	logger := config.NewLogger(os.Stderr, cfg.Logging, root.Verbose)
	slog.SetDefault(logger)
	g.Logger = logger

	status, err := RunExecutor(cfg, logger)
	if err != nil {
		return err
	}
	if code := orchestrator.ExitCode(status); code != 0 {
		return ExitError{Code: code}
	}
	return nil
}

// apply layers flag values over the loaded configuration.
func (r *RunCmd) apply(cfg *config.Config) error {
	if r.DockerHost != "" {
		cfg.Docker.Host = r.DockerHost
	}
	if r.NATSURL != "" {
		cfg.Orchestrator.NATSURL = r.NATSURL
	}
	if r.ExecutorID != "" {
		cfg.Orchestrator.ExecutorID = r.ExecutorID
	}
	if r.MetricsAddr != "" {
		cfg.Metrics.ListenAddr = r.MetricsAddr
	}
	return config.ValidateConfig(cfg)
}

// RunExecutor wires the controller to the orchestrator driver and blocks
// until the driver run ends.
func RunExecutor(cfg *config.Config, logger *slog.Logger) (orchestrator.DriverStatus, error) {
	logger.Info("Starting build executor",
		slog.String("version", version.Version),
		logfields.ExecutorID(cfg.Orchestrator.ExecutorID))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prom.NewRegistry()
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	if cfg.Metrics.ListenAddr != "" {
		srv := serveMetrics(cfg.Metrics.ListenAddr, reg, logger)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	opts := executor.Options{
		SandboxDir:        cfg.SandboxDir,
		DefaultDockerHost: cfg.Docker.Host,
		BootstrapPause:    cfg.Docker.Pause(),
		Connect:           connectFunc(cfg.Docker, logger),
		Recorder:          recorder,
		Logger:            logger,
	}
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return orchestrator.DriverNotStarted, err
		}
		defer func() { _ = store.Close() }()
		opts.Journal = store
	}

	ctrl := executor.New(opts)
	driver := orchestrator.NewNATSDriver(ctrl, orchestrator.NATSConfig{
		URL:            cfg.Orchestrator.NATSURL,
		SubjectPrefix:  cfg.Orchestrator.SubjectPrefix,
		ExecutorID:     cfg.Orchestrator.ExecutorID,
		CreateStream:   cfg.Orchestrator.StreamEnabled(),
		StreamName:     cfg.Orchestrator.StreamName,
		ConnectTimeout: cfg.Orchestrator.Timeout(),
		PublishRetry:   retry.FromConfig(cfg.Orchestrator.PublishRetry),
	}, orchestrator.WithRecorder(recorder), orchestrator.WithLogger(logger))

	// The process serves one task; once it is terminal the driver stops.
	go func() {
		select {
		case <-ctrl.Done():
			logger.Info("Task finished, stopping driver")
			driver.Stop()
		case <-ctx.Done():
		}
	}()

	status := driver.Run(ctx)

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	_ = ctrl.Shutdown(sctx)
	return status, nil
}

func connectFunc(cfg config.DockerConfig, logger *slog.Logger) executor.ConnectFunc {
	return func(_ context.Context, addr string) (dockerd.Client, error) {
		var opts []client.Opt
		if cfg.APIVersion != "" {
			opts = append(opts, client.WithVersion(cfg.APIVersion))
		}
		dc, err := dockerd.NewDockerClient(addr, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("Daemon client created", logfields.DockerHost(dc.Host()))
		return dc, nil
	}
}

func serveMetrics(addr string, reg *prom.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	logger.Info("Metrics endpoint listening", slog.String("addr", addr))
	return srv
}
