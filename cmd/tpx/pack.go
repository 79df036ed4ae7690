package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/cjgriscom/lib3mf/internal/logger"
	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
	"github.com/cjgriscom/lib3mf/pkg/toolpath"
)

func packCmd() *cli.Command {
	var (
		jobPath string
		outDir  string
		f       packFlags
	)

	return &cli.Command{
		Name:  "pack",
		Usage: "Build a toolpath package directory from a YAML job",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job", Aliases: []string{"j"}, Usage: "path to job.yaml", Required: true, Destination: &jobPath},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output package directory (must not exist)", Required: true, Destination: &outDir},
			&cli.BoolFlag{Name: "binary", Usage: "store coordinates in binary streams", Destination: &f.binary},
			&cli.StringFlag{Name: "codec", Usage: "binary stream codec (lzma, zstd, lz4, none)", Value: "lzma", Destination: &f.codec},
			&cli.IntFlag{Name: "chunk-size", Usage: "target uncompressed chunk size in bytes", Value: chunkstream.DefaultMaxChunkSize, Destination: &f.chunkSize},
			&cli.IntFlag{Name: "chunk-entries", Usage: "maximum arrays per chunk", Value: chunkstream.DefaultMaxChunkEntries, Destination: &f.chunkEntries},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyPackConfig(c, cfg, &f)

			codec, err := chunkstream.ParseCodec(f.codec)
			if err != nil {
				return err
			}
			job, err := loadJob(jobPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(outDir); err == nil {
				return fmt.Errorf("output %s already exists", outDir)
			}
			store, err := attachment.OpenDir(outDir)
			if err != nil {
				return err
			}

			opts := packOptions{
				binary: f.binary,
				writer: toolpath.WriterOptions{
					Stream: chunkstream.WriterOptions{
						Codec:           codec,
						MaxChunkSize:    f.chunkSize,
						MaxChunkEntries: f.chunkEntries,
					},
					Logger: log,
				},
			}
			tp, err := buildPackage(job, store, opts)
			if err != nil {
				return err
			}
			log.Info("package written",
				"out", outDir,
				"layers", tp.LayerCount(),
				"profiles", tp.ProfileCount(),
				"attachments", len(store.Paths()),
				"binary", f.binary,
				"codec", codec.String(),
			)
			return nil
		},
	}
}
