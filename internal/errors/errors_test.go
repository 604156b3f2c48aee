package errors

import (
	"bytes"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestExecutorError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ExecutorError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("no such file"), CategoryContext, SeverityFatal, "build context does not exist"),
			expected: "context (fatal): build context does not exist: no such file",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestExecutorError_WithContext(t *testing.T) {
	err := New(CategoryTag, SeverityFatal, "tag failed").
		WithContext("image", "acme/web").
		WithContext("tag", "v1")

	if err.Context == nil {
		t.Fatal("Context should not be nil")
	}
	if err.Context["image"] != "acme/web" {
		t.Errorf("Context[image] = %v, want acme/web", err.Context["image"])
	}
	if err.Context["tag"] != "v1" {
		t.Errorf("Context[tag] = %v, want v1", err.Context["tag"])
	}
}

func TestIsCategory(t *testing.T) {
	parseErr := ImageIDNotFound("done")
	wrapped := fmt.Errorf("pipeline: %w", TagFailed("acme/web", "v1", stdErrors.New("boom")))
	standardErr := fmt.Errorf("standard error")

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		expected bool
	}{
		{"parse error matches parse category", parseErr, CategoryParse, true},
		{"parse error doesn't match tag category", parseErr, CategoryTag, false},
		{"wrapped tag error matches tag category", wrapped, CategoryTag, true},
		{"standard error doesn't match any category", standardErr, CategoryConfig, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsCategory(test.err, test.category)
			if result != test.expected {
				t.Errorf("IsCategory() = %v, want %v", result, test.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"publish error", PublishFailed("executor.x.status", fmt.Errorf("timeout")), true},
		{"stream error", StreamFailed("acme/web", fmt.Errorf("eof")), false},
		{"standard error", fmt.Errorf("standard error"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsRetryable(test.err); got != test.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, test.expected)
			}
		})
	}
}

func TestGetCategory(t *testing.T) {
	if got := GetCategory(DaemonUnavailable(fmt.Errorf("refused"))); got != CategoryDaemon {
		t.Errorf("GetCategory() = %v, want %v", got, CategoryDaemon)
	}
	if got := GetCategory(fmt.Errorf("plain")); got != CategoryInternal {
		t.Errorf("GetCategory() = %v, want %v", got, CategoryInternal)
	}
}

func TestConvenienceFunctions(t *testing.T) {
	t.Run("ContextMissing", func(t *testing.T) {
		cause := fmt.Errorf("stat: no such file")
		err := ContextMissing("/sandbox/ctx.tar.gz", cause)
		if err.Category != CategoryContext {
			t.Errorf("Category = %v, want %v", err.Category, CategoryContext)
		}
		if err.Context["path"] != "/sandbox/ctx.tar.gz" {
			t.Errorf("Context[path] = %v", err.Context["path"])
		}
		if !stdErrors.Is(err, cause) {
			t.Errorf("Cause should match wrapped cause: %v", cause)
		}
	})

	t.Run("DescriptorInvalid", func(t *testing.T) {
		err := DescriptorInvalid("missing context", nil)
		if err.Category != CategoryDescriptor || err.Severity != SeverityFatal {
			t.Errorf("unexpected classification: %s/%s", err.Category, err.Severity)
		}
		if err.Context["reason"] != "missing context" {
			t.Errorf("Context[reason] = %v", err.Context["reason"])
		}
	})

	t.Run("ValidationFailed", func(t *testing.T) {
		err := ValidationFailed("logging.format", "unsupported value")
		if err.Category != CategoryValidation {
			t.Errorf("Category = %v, want %v", err.Category, CategoryValidation)
		}
		if err.Context["field"] != "logging.format" {
			t.Errorf("Context[field] = %v", err.Context["field"])
		}
	})
}

func TestCLIErrorAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	a := NewCLIErrorAdapter(false, logger)

	if code := a.ExitCodeFor(nil); code != 0 {
		t.Errorf("ExitCodeFor(nil) = %d, want 0", code)
	}
	if code := a.ExitCodeFor(ConfigRequired("orchestrator.nats_url")); code != 7 {
		t.Errorf("config exit code = %d, want 7", code)
	}
	if code := a.ExitCodeFor(DescriptorInvalid("bad", nil)); code != 11 {
		t.Errorf("descriptor exit code = %d, want 11", code)
	}
	if code := a.ExitCodeFor(fmt.Errorf("plain")); code != 1 {
		t.Errorf("plain exit code = %d, want 1", code)
	}

	if msg := a.FormatError(ConfigRequired("x")); msg != "required configuration missing" {
		t.Errorf("FormatError() = %q", msg)
	}
	if msg := a.FormatError(TagFailed("acme/web", "v1", nil)); msg != "tag: image tag failed" {
		t.Errorf("FormatError() = %q", msg)
	}

	a.Log(TagFailed("acme/web", "v1", fmt.Errorf("conflict")))
	out := buf.String()
	if !strings.Contains(out, "category=tag") || !strings.Contains(out, "tag=v1") {
		t.Errorf("log output missing attributes: %s", out)
	}
}
