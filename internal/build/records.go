package build

import (
	"encoding/json"
	"io"
	"iter"
	"strings"
	"unicode"

	"github.com/docker/docker/pkg/jsonmessage"
)

// Records lazily decodes the daemon's build output, one JSON record at a
// time. Decoding stops at the first malformed record, which is yielded as an
// error.
func Records(r io.Reader) iter.Seq2[*jsonmessage.JSONMessage, error] {
	return func(yield func(*jsonmessage.JSONMessage, error) bool) {
		dec := json.NewDecoder(r)
		for {
			var msg jsonmessage.JSONMessage
			if err := dec.Decode(&msg); err != nil {
				if err != io.EOF {
					yield(nil, err)
				}
				return
			}
			if !yield(&msg, nil) {
				return
			}
		}
	}
}

// StreamText returns the record's stream text without trailing whitespace.
func StreamText(msg *jsonmessage.JSONMessage) string {
	if msg == nil {
		return ""
	}
	return strings.TrimRightFunc(msg.Stream, unicode.IsSpace)
}

// recordError returns the daemon-reported error carried by msg, if any.
func recordError(msg *jsonmessage.JSONMessage) error {
	if msg.Error != nil {
		return msg.Error
	}
	// Older daemons only set the plain "error" field.
	if msg.ErrorMessage != "" {
		return &jsonmessage.JSONError{Message: msg.ErrorMessage}
	}
	return nil
}
