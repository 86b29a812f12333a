package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/config"
	"github.com/reglet-dev/kiln/internal/image"
)

// Runtime provides common command dependencies.
// Eliminates repetitive store and config initialization across CLI commands.
type Runtime struct {
	SystemConfig *config.SystemConfig
	Store        *image.Store
	Cache        *image.Cache
	Logger       *slog.Logger
	Context      context.Context
}

// CommandHandler is a function that executes with initialized dependencies.
// Commands focus on business logic, not infrastructure setup.
type CommandHandler func(*Runtime, *cobra.Command, []string) error

// withRuntime wraps a command handler with runtime initialization.
// Handles common setup: system config loading, store and cache opening.
//
// Usage:
//
//	cmd := &cobra.Command{
//	    Use: "list",
//	    RunE: withRuntime(func(rt *Runtime, cmd *cobra.Command, args []string) error {
//	        entries, err := rt.Cache.Entries()
//	        ...
//	    }),
//	}
func withRuntime(handler CommandHandler) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		sysCfg, err := config.LoadSystemConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load system config: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		store, err := image.OpenStore(ctx, sysCfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize image store: %w", err)
		}

		// The cache lives alongside the store so one directory holds
		// everything kiln writes.
		cache, err := image.NewCache(filepath.Join(store.Root(), "cache"))
		if err != nil {
			return fmt.Errorf("failed to initialize layer cache: %w", err)
		}

		rt := &Runtime{
			SystemConfig: sysCfg,
			Store:        store,
			Cache:        cache,
			Logger:       logger,
			Context:      ctx,
		}

		return handler(rt, cmd, args)
	}
}
