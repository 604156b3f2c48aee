// Package build runs one image build against the container daemon: it
// uploads the context archive, relays the daemon's output as progress
// messages, extracts the image ID and applies the requested tags.
package build

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/opencontainers/go-digest"

	"git.home.luguber.info/inful/buildexecutor/internal/dockerd"
	"git.home.luguber.info/inful/buildexecutor/internal/errors"
	"git.home.luguber.info/inful/buildexecutor/internal/logfields"
	"git.home.luguber.info/inful/buildexecutor/internal/metrics"
	"git.home.luguber.info/inful/buildexecutor/internal/observability"
	"git.home.luguber.info/inful/buildexecutor/internal/task"
)

// Pipeline stage names, used for logs and metrics.
const (
	StageContext = "context"
	StageStream  = "stream"
	StageExtract = "extract"
	StageTag     = "tag"
)

// ProgressSink receives human-readable progress lines for the orchestrator.
type ProgressSink interface {
	Progress(ctx context.Context, text string)
}

// Result describes a successful build.
type Result struct {
	ImageName     string
	ImageID       string
	Tags          []string
	ContextDigest digest.Digest
	Records       int
	Duration      time.Duration
}

// Pipeline executes builds. It holds no per-build state and may be reused.
type Pipeline struct {
	extractor ImageIDExtractor
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithExtractor replaces the image ID extractor.
func WithExtractor(e ImageIDExtractor) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.extractor = e
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline returns a pipeline using the classic builder extractor.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: DefaultExtractor(),
		recorder:  metrics.NoopRecorder{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Build runs the pipeline and converts the outcome to a terminal state.
// Every failure is logged here, once.
func (p *Pipeline) Build(ctx context.Context, bt *task.BuildTask, sandboxDir string, client dockerd.Client, progress ProgressSink) task.State {
	start := time.Now()
	res, err := p.Run(ctx, bt, sandboxDir, client, progress)
	state := task.StateFinished
	if err != nil {
		state = task.StateFailed
		p.log(ctx, slog.LevelError, "Image build failed",
			slog.String("category", string(errors.GetCategory(err))),
			logfields.Error(err))
	} else {
		p.log(ctx, slog.LevelInfo, "Image built",
			logfields.ImageID(res.ImageID),
			slog.Any("tags", res.Tags),
			logfields.DurationMS(float64(res.Duration.Milliseconds())))
	}
	p.recorder.ObserveBuildDuration(state.String(), time.Since(start))
	return state
}

// Run executes the pipeline and returns the first error encountered.
func (p *Pipeline) Run(ctx context.Context, bt *task.BuildTask, sandboxDir string, client dockerd.Client, progress ProgressSink) (*Result, error) {
	if bt == nil {
		return nil, errors.InternalError("no build task", nil)
	}
	if client == nil {
		return nil, errors.DaemonUnavailable(stdErrors.New("no daemon client"))
	}
	if progress == nil {
		progress = discardProgress{}
	}

	start := time.Now()
	imageName := bt.ImageName()
	ctx = observability.WithImage(ctx, imageName)
	res := &Result{ImageName: imageName}

	contextPath := filepath.Join(sandboxDir, bt.Context)
	p.log(ctx, slog.LevelInfo, "Building image", logfields.Context(contextPath))

	var records []*jsonmessage.JSONMessage
	if err := p.stage(ctx, StageContext, func(context.Context) error {
		return checkContext(contextPath)
	}); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, StageStream, func(ctx context.Context) error {
		var err error
		records, res.ContextDigest, err = p.stream(ctx, contextPath, imageName, client, progress)
		return err
	}); err != nil {
		return nil, err
	}
	res.Records = len(records)

	if err := p.stage(ctx, StageExtract, func(context.Context) error {
		var err error
		res.ImageID, err = p.extractor.Extract(records)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, StageTag, func(ctx context.Context) error {
		var err error
		res.Tags, err = p.tag(ctx, res.ImageID, imageName, bt.Tags(), client, progress)
		return err
	}); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	return res, nil
}

func checkContext(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.ContextMissing(path, err)
	}
	if info.IsDir() {
		return errors.ContextMissing(path, fmt.Errorf("%s is a directory, expected an archive", path))
	}
	return nil
}

// stream uploads the context and relays each output record. All records are
// retained for extraction; only records with stream text are forwarded.
func (p *Pipeline) stream(ctx context.Context, contextPath, imageName string, client dockerd.Client, progress ProgressSink) ([]*jsonmessage.JSONMessage, digest.Digest, error) {
	f, err := os.Open(contextPath)
	if err != nil {
		return nil, "", errors.ContextMissing(contextPath, err)
	}
	defer f.Close()

	digester := digest.Canonical.Digester()
	upload := io.TeeReader(f, digester.Hash())

	body, err := client.Build(ctx, upload, dockerd.BuildOptions{Encoding: dockerd.EncodingGzip, CustomContext: true})
	if err != nil {
		return nil, "", errors.StreamFailed(imageName, err)
	}
	defer body.Close()

	var records []*jsonmessage.JSONMessage
	for msg, err := range Records(body) {
		if err != nil {
			return records, "", errors.StreamFailed(imageName, err)
		}
		p.log(ctx, slog.LevelDebug, "Received update from daemon", slog.Any("record", msg))
		if rerr := recordError(msg); rerr != nil {
			return records, "", errors.StreamFailed(imageName, rerr)
		}
		records = append(records, msg)
		if text := StreamText(msg); text != "" {
			progress.Progress(ctx, fmt.Sprintf("%s: %s", imageName, text))
		}
	}

	d := digester.Digest()
	p.log(ctx, slog.LevelInfo, "Build output complete", logfields.Digest(d.String()), slog.Int("records", len(records)))
	return records, d, nil
}

func (p *Pipeline) tag(ctx context.Context, imageID, imageName string, tags []string, client dockerd.Client, progress ProgressSink) ([]string, error) {
	applied := make([]string, 0, len(tags))
	for _, tag := range tags {
		if err := client.Tag(ctx, imageID, imageName, tag, true); err != nil {
			p.recorder.IncTagResult(false)
			return applied, errors.TagFailed(imageName, tag, err)
		}
		p.recorder.IncTagResult(true)
		applied = append(applied, tag)
		progress.Progress(ctx, fmt.Sprintf("%s:  ---> Tag %s with %s", imageName, imageID, tag))
	}
	return applied, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(observability.WithStage(ctx, name))
	p.recorder.ObserveStageDuration(name, time.Since(start))
	if err != nil {
		p.recorder.IncStageResult(name, metrics.ResultFatal)
		if ee, ok := errors.As(err); ok {
			ee.WithContext("stage", name)
		}
		return err
	}
	p.recorder.IncStageResult(name, metrics.ResultSuccess)
	return nil
}

func (p *Pipeline) log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	observability.Log(ctx, p.logger, level, msg, attrs...)
}

type discardProgress struct{}

func (discardProgress) Progress(context.Context, string) {}
