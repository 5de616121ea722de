package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/reflex/internal/config"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		store      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the counter demo over a reflex cable",
		Long: `Serve a counter page and its Counter reflex handler.

The page is served at "/" and invocations are accepted on the cable
path. Open the page in two tabs of the same browser to watch both update.

Configuration is read from reflex.json, reflex.toml or reflex.yaml in
the working directory, or from the file passed with --config. Without a
file the defaults are used.

Examples:
  reflex serve
  reflex serve --addr=:3000
  reflex serve --config=deploy/reflex.yaml --store=redis`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			if store != "" {
				cfg.Session.Store = store
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: reflex.* in the working directory)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on")
	cmd.Flags().StringVar(&store, "store", "", "Session store: memory, redis, postgres, sqlite or s3")

	return cmd
}

// loadConfig reads path, or the configuration of the working directory
// when path is empty. A missing working directory configuration yields the
// defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		if code(err) == "R041" {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	printBanner()
	fmt.Println("  serve")
	fmt.Println()

	s, err := build(ctx, cfg, logger, demoApp(cfg.Name), demoRegistry())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Close(closeCtx)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.fanout != nil {
		go func() {
			if err := s.fanout.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis broadcast stopped", "error", err)
			}
		}()
	}

	success("Listening on %s", cfg.Server.Address)
	info("Cable:    %s", cfg.Server.CablePath)
	info("Sessions: %s", cfg.Session.Store)
	info("Fanout:   %s", cfg.Broadcast.Driver)
	if cfg.Metrics.Enabled {
		info("Metrics:  %s", cfg.Metrics.Path)
	}
	if cfg.Tracing.Enabled {
		info("Tracing:  %s", cfg.Tracing.Endpoint)
	}
	if cfg.Session.Store == config.StoreMemory {
		warn("Sessions are kept in memory and lost on restart")
	}
	fmt.Println()

	return s.server.Run()
}
