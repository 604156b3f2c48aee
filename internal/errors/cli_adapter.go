package errors

import (
	"context"
	"fmt"
	"log/slog"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if ee, ok := As(err); ok {
		return a.exitCodeFromExecutor(ee)
	}

	return 1
}

// exitCodeFromExecutor maps ExecutorError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromExecutor(err *ExecutorError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryOrchestrator, CategoryDaemon:
		return 8 // External system error
	case CategoryDescriptor, CategoryContext, CategoryStream, CategoryParse, CategoryTag:
		return 11 // Build error
	case CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if ee, ok := As(err); ok {
		if a.verbose {
			return ee.Error()
		}
		switch ee.Category {
		case CategoryConfig, CategoryValidation:
			return ee.Message
		default:
			return fmt.Sprintf("%s: %s", ee.Category, ee.Message)
		}
	}

	return fmt.Sprintf("Error: %v", err)
}

// Log writes err to the adapter's logger at a level derived from its severity.
func (a *CLIErrorAdapter) Log(err error) {
	if err == nil {
		return
	}
	ee, ok := As(err)
	if !ok {
		a.logger.Error("Unclassified error", "error", err)
		return
	}

	attrs := []slog.Attr{slog.String("category", string(ee.Category))}
	if ee.Retryable {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	if ee.Cause != nil {
		attrs = append(attrs, slog.String("error", ee.Cause.Error()))
	}
	for k, v := range ee.Context {
		attrs = append(attrs, slog.Any(k, v))
	}
	a.logger.LogAttrs(context.Background(), levelFromSeverity(ee.Severity), ee.Message, attrs...)
}

func levelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
