package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/cjgriscom/lib3mf/internal/api"
	"github.com/cjgriscom/lib3mf/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		pkgDir      string
		addr        string
		readTimeout time.Duration
		cacheChunks int
		layerCache  int
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a read-only HTTP API over a package",
		Flags: []cli.Flag{
			packageFlag(&pkgDir),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.IntFlag{
				Name:        "cache-chunks",
				Usage:       "decompressed chunks cached per binary stream",
				Destination: &cacheChunks,
			},
			&cli.IntFlag{
				Name:        "layer-cache",
				Usage:       "parsed layers kept in memory",
				Value:       api.DefaultLayerCache,
				Destination: &layerCache,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(c, cfg, &addr, &cacheChunks)

			store, tp, err := openPackage(pkgDir)
			if err != nil {
				return err
			}
			server, err := api.NewServer(store, tp, api.Config{
				LayerCache:  layerCache,
				CacheChunks: cacheChunks,
				Logger:      log,
			})
			if err != nil {
				return err
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "package", pkgDir, "layers", tp.LayerCount())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
