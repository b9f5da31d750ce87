package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/cmd/landingd/commands"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/foundation/errors"
)

func main() {
	cli := &commands.CLI{}
	parser, err := commands.NewParser(cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
