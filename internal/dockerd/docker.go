package dockerd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/client"
	"github.com/klauspost/compress/gzip"

	"git.home.luguber.info/inful/buildexecutor/internal/errors"
)

// DockerClient implements Client against a Docker Engine API.
type DockerClient struct {
	cli  *client.Client
	host string
}

// ResolveHost normalizes a daemon address. A bare "host:port" becomes
// tcp://host:port, addresses with a scheme are kept and an empty address
// means the environment (DOCKER_HOST or the local socket) decides.
func ResolveHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.Contains(addr, "://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "tcp://" + strings.TrimSuffix(addr, "/")
}

// NewDockerClient connects to the daemon at addr, or to the environment's
// daemon when addr is empty. API version negotiation is always enabled.
func NewDockerClient(addr string, opts ...client.Opt) (*DockerClient, error) {
	host := ResolveHost(addr)
	base := []client.Opt{client.FromEnv}
	if host != "" {
		base = append(base, client.WithHost(host))
	}
	base = append(base, client.WithAPIVersionNegotiation())

	cli, err := client.NewClientWithOpts(append(base, opts...)...)
	if err != nil {
		return nil, errors.DaemonUnavailable(err).WithContext("docker_host", host)
	}
	return &DockerClient{cli: cli, host: cli.DaemonHost()}, nil
}

// Host reports the daemon address in use.
func (d *DockerClient) Host() string { return d.host }

func (d *DockerClient) Build(ctx context.Context, buildContext io.Reader, opts BuildOptions) (io.ReadCloser, error) {
	body := buildContext
	if opts.Encoding == EncodingGzip {
		var err error
		if body, err = gzipContext(buildContext); err != nil {
			return nil, fmt.Errorf("prepare build context: %w", err)
		}
	}

	resp, err := d.cli.ImageBuild(ctx, body, build.ImageBuildOptions{
		Remove:         true,
		SuppressOutput: false,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Tag applies repository:tag to imageID. The engine API always moves an
// existing tag, so force only exists for interface parity.
func (d *DockerClient) Tag(ctx context.Context, imageID, repository, tag string, _ bool) error {
	return d.cli.ImageTag(ctx, imageID, repository+":"+tag)
}

func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// gzipContext returns r unchanged when it already starts with the gzip magic
// bytes, otherwise a reader producing the gzip compressed stream.
func gzipContext(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return br, nil
	}

	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		if _, err := io.Copy(zw, br); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(zw.Close())
	}()
	return pr, nil
}
