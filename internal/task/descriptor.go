// Package task defines the build task descriptor an executor receives at
// registration and the status records it reports back to the orchestrator.
package task

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/buildexecutor/internal/errors"
)

// DefaultTag is applied when a descriptor carries no tags.
const DefaultTag = "latest"

// Repository identifies the target image namespace.
type Repository struct {
	Username string `json:"username" yaml:"username"`
	RepoName string `json:"repo_name" yaml:"repo_name"`
}

// Image holds the target image coordinates and the tags to apply.
type Image struct {
	Repository Repository `json:"repository" yaml:"repository"`
	Tag        []string   `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// BuildTask is the immutable build request assigned to this process.
type BuildTask struct {
	// Context is the build context archive, relative to the sandbox directory.
	Context string `json:"context" yaml:"context"`

	// DockerHost is an explicit daemon address. Nil means a local daemon is
	// bootstrapped by the executor.
	DockerHost *string `json:"docker_host,omitempty" yaml:"docker_host,omitempty"`

	Image Image `json:"image" yaml:"image"`
}

// Decode parses a serialized descriptor. JSON documents are decoded strictly
// with encoding/json; anything else is treated as YAML.
func Decode(data []byte) (*BuildTask, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.DescriptorInvalid("empty descriptor", nil)
	}

	var bt BuildTask
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&bt); err != nil {
			return nil, errors.DescriptorInvalid("malformed JSON descriptor", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		if err := dec.Decode(&bt); err != nil {
			return nil, errors.DescriptorInvalid("malformed YAML descriptor", err)
		}
	}

	if err := bt.Validate(); err != nil {
		return nil, err
	}
	return &bt, nil
}

// Validate checks the fields every build needs.
func (bt *BuildTask) Validate() error {
	switch {
	case strings.TrimSpace(bt.Context) == "":
		return errors.DescriptorInvalid("context is required", nil)
	case strings.TrimSpace(bt.Image.Repository.Username) == "":
		return errors.DescriptorInvalid("image.repository.username is required", nil)
	case strings.TrimSpace(bt.Image.Repository.RepoName) == "":
		return errors.DescriptorInvalid("image.repository.repo_name is required", nil)
	case bt.DockerHost != nil && strings.TrimSpace(*bt.DockerHost) == "":
		return errors.DescriptorInvalid("docker_host must not be empty when set", nil)
	}
	for _, tag := range bt.Image.Tag {
		if strings.TrimSpace(tag) == "" {
			return errors.DescriptorInvalid("image.tag entries must not be empty", nil)
		}
	}
	return nil
}

// ImageName returns "{username}/{repo_name}".
func (bt *BuildTask) ImageName() string {
	return bt.Image.Repository.Username + "/" + bt.Image.Repository.RepoName
}

// Tags returns the tags to apply, defaulting to ["latest"].
func (bt *BuildTask) Tags() []string {
	if len(bt.Image.Tag) == 0 {
		return []string{DefaultTag}
	}
	tags := make([]string, len(bt.Image.Tag))
	copy(tags, bt.Image.Tag)
	return tags
}

// HasDockerHost reports whether the descriptor names an explicit daemon.
func (bt *BuildTask) HasDockerHost() bool {
	return bt.DockerHost != nil
}

// DaemonAddress returns the explicit daemon address or "".
func (bt *BuildTask) DaemonAddress() string {
	if bt.DockerHost == nil {
		return ""
	}
	return *bt.DockerHost
}
