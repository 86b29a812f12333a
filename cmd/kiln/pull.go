package main

import (
	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/registry"
)

func init() {
	rootCmd.AddCommand(newPullCmd())
}

func newPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull <reference>",
		Short: "Pull an image from a registry into the local store",
		Example: `  # Pull a base image ahead of a build
  kiln pull ghcr.io/library/python:3.12-slim`,
		Args: cobra.ExactArgs(1),
		RunE: withRuntime(func(rt *Runtime, cmd *cobra.Command, args []string) error {
			client := registry.NewClient(rt.Store, rt.SystemConfig.Registry, rt.Logger)
			return client.Pull(rt.Context, args[0])
		}),
	}

	return cmd
}
