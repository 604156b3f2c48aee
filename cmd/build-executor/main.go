package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildexecutor/cmd/build-executor/commands"
	"git.home.luguber.info/inful/buildexecutor/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Must(cli,
		kong.Name("build-executor"),
		kong.Description("Runs one container image build per process on behalf of an orchestrator"),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = kctx.Run(&commands.Global{Logger: slog.Default()}, cli)
	os.Exit(commands.ExitCode(err, cli.Verbose))
}
