// Package testdaemon provides a scriptable in-memory container daemon for
// tests of the build pipeline and the task controller.
package testdaemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"git.home.luguber.info/inful/buildexecutor/internal/dockerd"
)

// TagCall records one Tag invocation.
type TagCall struct {
	ImageID    string
	Repository string
	Tag        string
	Force      bool
}

// FakeClient implements dockerd.Client. Build replies with Output; Tag fails
// for tags present in TagErrors.
type FakeClient struct {
	mu sync.Mutex

	// Output is the raw build response body.
	Output []byte
	// BuildErr makes Build fail before any output.
	BuildErr error
	// TagErrors maps tag -> error returned by Tag.
	TagErrors map[string]error
	// OnBuild runs at the start of Build.
	OnBuild func()

	builds   int
	contexts [][]byte
	options  []dockerd.BuildOptions
	tags     []TagCall
	closed   bool
}

var _ dockerd.Client = (*FakeClient)(nil)

// NewFakeClient returns a client whose builds produce the given records.
func NewFakeClient(records ...map[string]any) *FakeClient {
	return &FakeClient{Output: Lines(records...)}
}

// Succeeding returns a client whose build emits steps followed by the
// classic "Successfully built <imageID>" line.
func Succeeding(imageID string, steps ...string) *FakeClient {
	records := make([]map[string]any, 0, len(steps)+1)
	for _, s := range steps {
		records = append(records, Stream(s+"\n"))
	}
	records = append(records, Stream("Successfully built "+imageID+"\n"))
	return NewFakeClient(records...)
}

// Stream builds a record carrying stream text.
func Stream(text string) map[string]any {
	return map[string]any{"stream": text}
}

// ErrorRecord builds a record carrying a daemon error.
func ErrorRecord(message string) map[string]any {
	return map[string]any{
		"error":       message,
		"errorDetail": map[string]any{"message": message},
	}
}

// Lines encodes records as newline separated JSON.
func Lines(records ...map[string]any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		_ = enc.Encode(r)
	}
	return buf.Bytes()
}

func (f *FakeClient) Build(_ context.Context, buildContext io.Reader, opts dockerd.BuildOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	hook := f.OnBuild
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	data, err := io.ReadAll(buildContext)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	f.contexts = append(f.contexts, data)
	f.options = append(f.options, opts)
	if f.BuildErr != nil {
		return nil, f.BuildErr
	}
	return io.NopCloser(bytes.NewReader(f.Output)), nil
}

func (f *FakeClient) Tag(_ context.Context, imageID, repository, tag string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, TagCall{ImageID: imageID, Repository: repository, Tag: tag, Force: force})
	if err, ok := f.TagErrors[tag]; ok {
		return err
	}
	return nil
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Builds returns how many times Build was called.
func (f *FakeClient) Builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

// Contexts returns the context bytes received by each Build call.
func (f *FakeClient) Contexts() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.contexts...)
}

// Options returns the options passed to each Build call.
func (f *FakeClient) Options() []dockerd.BuildOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dockerd.BuildOptions(nil), f.options...)
}

// Tags returns every Tag call in order.
func (f *FakeClient) Tags() []TagCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TagCall(nil), f.tags...)
}

// Closed reports whether Close was called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
