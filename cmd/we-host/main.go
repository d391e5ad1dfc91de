package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/wasm-everything/we/internal/cmd/run"
	"github.com/wasm-everything/we/internal/cmd/schema"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "loglvl",
		Usage:   "set logging `level` to debug, info, warn or error",
		Value:   "info",
		EnvVars: []string{"WE_LOGLVL"},
	},
	&cli.BoolFlag{
		Name:    "dev",
		Usage:   "human-readable console logs",
		EnvVars: []string{"WE_DEV"},
	},
}

var commands = []*cli.Command{
	run.Command(),
	schema.Command(),
}

func main() {
	app := &cli.App{
		Name:      "we-host",
		Usage:     "load wasm modules and serve their host calls",
		UsageText: "we-host [global options] command [command options] [arguments...]",
		Flags:     flags,
		Commands:  commands,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
