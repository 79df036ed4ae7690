package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/cjgriscom/lib3mf/internal/version"
)

func versionCmd() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{jsonFlag(&asJSON)},
		Action: func(ctx context.Context, c *cli.Command) error {
			info := version.Resolve()
			w := c.Root().Writer
			if asJSON {
				return writeJSON(w, info)
			}
			_, _ = fmt.Fprintf(w, "version:    %s\n", info.Version)
			if info.Commit != "" {
				_, _ = fmt.Fprintf(w, "commit:     %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				_, _ = fmt.Fprintf(w, "build time: %s\n", info.BuildTime)
			}
			if info.Modified {
				_, _ = fmt.Fprintln(w, "modified:   true")
			}
			return nil
		},
	}
}
