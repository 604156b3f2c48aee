// Package dockerd owns the connection to the container daemon: the Client
// boundary used by the build pipeline, its Docker Engine implementation and
// the readiness gate that build units wait on until a client exists.
package dockerd

import (
	"context"
	"io"
)

// EncodingGzip marks a build context as gzip compressed.
const EncodingGzip = "gzip"

// BuildOptions controls how the build context is sent to the daemon.
type BuildOptions struct {
	// Encoding is the transfer encoding of the context; EncodingGzip compresses
	// uncompressed archives on the fly.
	Encoding string
	// CustomContext marks the reader as a complete, pre-packaged context archive.
	CustomContext bool
}

// Client is the subset of the daemon API the executor needs.
type Client interface {
	// Build submits the context and returns the streamed JSON output records.
	Build(ctx context.Context, buildContext io.Reader, opts BuildOptions) (io.ReadCloser, error)
	// Tag applies repository:tag to an existing image.
	Tag(ctx context.Context, imageID, repository, tag string, force bool) error
	Close() error
}
