package main

import "github.com/urfave/cli/v3"

var (
	logLevel  string
	logFormat string
	debug     bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func packageFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "package",
		Aliases:     []string{"p"},
		Usage:       "package directory",
		Required:    true,
		Destination: dest,
	}
}

func jsonFlag(dest *bool) cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "print JSON instead of text",
		Destination: dest,
	}
}
