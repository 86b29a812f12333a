package main

import (
	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/registry"
)

func init() {
	rootCmd.AddCommand(newPushCmd())
}

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <reference>...",
		Short: "Push images from the local store to their registries",
		Example: `  # Push a single image
  kiln push registry.example.com/housing-scraper:1.4.0

  # Push several references concurrently
  kiln push registry.example.com/scraper:1.4.0 registry.example.com/scraper:latest`,
		Args: cobra.MinimumNArgs(1),
		RunE: withRuntime(func(rt *Runtime, cmd *cobra.Command, args []string) error {
			client := registry.NewClient(rt.Store, rt.SystemConfig.Registry, rt.Logger)
			if len(args) == 1 {
				return client.Push(rt.Context, args[0])
			}
			return client.PushAll(rt.Context, args)
		}),
	}

	return cmd
}
