package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/cjgriscom/lib3mf/internal/logger"
)

// cfg is loaded once before any subcommand runs.
var cfg Config

func main() {
	app := &cli.Command{
		Name:   "tpx",
		Usage:  "Build, inspect and serve 3MF toolpath packages",
		Flags:  loggingFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			packCmd(),
			inspectCmd(),
			dumpCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error
	if cfg, err = LoadConfig(); err != nil {
		return ctx, err
	}
	applyLoggingConfig(cmd, cfg)
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log, err := logger.ForFormat(logFormat, os.Stderr, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
