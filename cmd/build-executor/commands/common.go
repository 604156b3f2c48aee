package commands

import (
	stderrors "errors"
	"log/slog"
	"os"
	"strconv"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildexecutor/internal/config"
	"git.home.luguber.info/inful/buildexecutor/internal/errors"
)

// Global carries state shared by subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (optional)" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run        RunCmd     `cmd:"" default:"withargs" help:"Connect to the orchestrator and run the assigned build task"`
	VersionCmd VersionCmd `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply runs after flag parsing; setup logging once. The run command
// replaces the logger when the configuration selects another level or format.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(config.NewLogger(os.Stderr, config.LoggingConfig{}, c.Verbose))
	return nil
}

// ExitError ends the process with Code without further reporting.
type ExitError struct {
	Code int
}

func (e ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// ExitCode maps a command result to the process exit code. Classified
// errors are logged and mapped by the CLI error adapter.
func ExitCode(err error, verbose bool) int {
	if err == nil {
		return 0
	}
	var exit ExitError
	if stderrors.As(err, &exit) {
		return exit.Code
	}
	adapter := errors.NewCLIErrorAdapter(verbose, slog.Default())
	adapter.Log(err)
	return adapter.ExitCodeFor(err)
}
