// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command maibot-napcat-adapter accepts a reverse WebSocket connection from a
// NapCat (OneBot v11) gateway and forwards converted chat messages to MaiBot.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.mau.fi/util/exzerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "maibot-napcat-adapter",
		Usage:   "A NapCat to MaiBot message adapter",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Tag, Commit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file, created from the example if missing",
				Value:   "config.yaml",
				EnvVars: []string{"ADAPTER_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "no-update",
				Usage:   "don't write new config keys back to the config file",
				EnvVars: []string{"ADAPTER_NO_UPDATE"},
			},
			&cli.StringFlag{
				Name:  "generate-example-config",
				Usage: "write the example config to the given path and exit",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	if path := cctx.String("generate-example-config"); path != "" {
		return os.WriteFile(path, []byte(connector.ExampleConfig), 0o600)
	}

	_ = godotenv.Load(".env")

	cfg, err := connector.LoadConfig(cctx.String("config"), !cctx.Bool("no-update"))
	if err != nil {
		return err
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	exzerolog.SetupDefaults(log)
	log.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Str("platform", cfg.Platform).
		Str("dispatch", cfg.Dispatch.Type).
		Msg("Starting maibot-napcat-adapter")

	dispatcher, err := connector.NewDispatcher(cfg, *log)
	if err != nil {
		return err
	}
	images := connector.NewHTTPImageFetcher(cfg.Images, *log)
	nc := connector.NewNapcatConnector(cfg, dispatcher, images, *log)

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return nc.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return dispatcher.Close()
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Adapter stopped")
	return nil
}
