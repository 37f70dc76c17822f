package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantkit/internal/api"
	"github.com/samcharles93/quantkit/internal/logger"
	"github.com/samcharles93/quantkit/pkg/qtc"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a read-only HTTP view of a .qtc container",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, LoadConfig(), &addr)

			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("serve: .qtc path required")
			}

			log := newLogger()
			ctx = logger.WithContext(ctx, log)

			f, err := qtc.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			man, err := qtc.ReadManifest(qtc.ManifestPath(path))
			if err != nil {
				log.Warn("manifest sidecar unavailable", "error", err)
				man = nil
			}

			server := api.NewServer(f, man)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "container", path, "tensors", f.Count())
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
