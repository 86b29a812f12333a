package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/runner"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	var envVars []string

	cmd := &cobra.Command{
		Use:   "run <reference>",
		Short: "Run an image from the local store",
		Long: `Run an image from the local store: the image is unpacked and its
entrypoint is launched as a single process with inherited stdio. The
entrypoint argv is fixed at build time and cannot be overridden here;
behavior varies only through the image's configuration file and the
environment variables passed with --env.`,
		Example: `  # Run a built image
  kiln run housing-scraper:latest

  # Pass environment variables to the entrypoint
  kiln run housing-scraper:latest --env LOG_LEVEL=debug`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("requires an image reference")
			}
			if len(args) > 1 {
				return fmt.Errorf("the entrypoint is fixed at build time; extra arguments are not passed to it (use --env for runtime variation)")
			}
			return nil
		},
		RunE: withRuntime(func(rt *Runtime, cmd *cobra.Command, args []string) error {
			r := runner.New(rt.Store, rt.Logger)

			code, err := r.Run(rt.Context, args[0], envVars)
			if err != nil {
				return err
			}
			if code != 0 {
				// Propagate the child's exit code as our own.
				os.Exit(code)
			}
			return nil
		}),
	}

	cmd.Flags().StringArrayVar(&envVars, "env", nil, "environment variables for the entrypoint (KEY=VALUE)")

	return cmd
}
