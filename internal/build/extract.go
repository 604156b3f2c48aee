package build

import (
	"regexp"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"

	"git.home.luguber.info/inful/buildexecutor/internal/errors"
)

// ImageIDExtractor derives the built image identifier from the retained
// build output.
type ImageIDExtractor interface {
	Extract(records []*jsonmessage.JSONMessage) (string, error)
}

// builtPattern matches the classic builder's "Successfully built <id>" line.
var builtPattern = regexp.MustCompile(`built (.*)$`)

// PatternExtractor matches Pattern against the trimmed stream text of the
// final record.
type PatternExtractor struct {
	Pattern *regexp.Regexp
}

// DefaultExtractor returns the extractor for classic builder output.
func DefaultExtractor() PatternExtractor {
	return PatternExtractor{Pattern: builtPattern}
}

func (e PatternExtractor) Extract(records []*jsonmessage.JSONMessage) (string, error) {
	if len(records) == 0 {
		return "", errors.ImageIDNotFound("")
	}
	pattern := e.Pattern
	if pattern == nil {
		pattern = builtPattern
	}

	line := StreamText(records[len(records)-1])
	m := pattern.FindStringSubmatch(line)
	if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
		return "", errors.ImageIDNotFound(line)
	}
	return m[1], nil
}
