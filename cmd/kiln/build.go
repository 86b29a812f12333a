package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/config"
	"github.com/reglet-dev/kiln/internal/deps"
	"github.com/reglet-dev/kiln/internal/engine"
	"github.com/reglet-dev/kiln/internal/output"
	"github.com/reglet-dev/kiln/internal/registry"
	"github.com/reglet-dev/kiln/internal/scan"
)

func init() {
	rootCmd.AddCommand(newBuildCmd())
}

func newBuildCmd() *cobra.Command {
	var (
		tag      string
		noCache  bool
		skipScan bool
		format   string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "build <bakefile>",
		Short: "Build an image from a bakefile",
		Long: `Build an image from a bakefile. The build runs as a strictly
sequential pipeline: resolve the base image, install the dependency
manifest, scan and copy the source tree and configuration file, and tag
the finished image in the local store. The first failure aborts the
build and no partial image is produced.`,
		Example: `  # Build the image declared in bakefile.yml
  kiln build bakefile.yml

  # Build with a different tag and a machine-readable report
  kiln build bakefile.yml --tag nightly --format json`,
		Args: cobra.ExactArgs(1),
		RunE: withRuntime(func(rt *Runtime, cmd *cobra.Command, args []string) error {
			bakefilePath := args[0]

			bf, err := config.Load(bakefilePath)
			if err != nil {
				return err
			}

			if tag != "" {
				bf.Image.Tag = tag
			}

			contextDir := filepath.Dir(bakefilePath)

			opts := engine.Options{
				NoCache:      noCache,
				ScanWarnOnly: rt.SystemConfig.Scan.WarnOnly,
			}
			if !skipScan && !rt.SystemConfig.Scan.Disabled {
				scanner, err := scan.NewScanner()
				if err != nil {
					return fmt.Errorf("failed to initialize secret scanner: %w", err)
				}
				opts.Scanner = scanner
			}

			resolver := registry.NewClient(rt.Store, rt.SystemConfig.Registry, rt.Logger)
			installer := deps.NewExecInstaller(bf.Dependencies.Installer)

			eng := engine.New(rt.Store, rt.Cache, resolver, installer, rt.Logger, opts)

			result, buildErr := eng.Build(rt.Context, bf, contextDir)

			writer := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				writer = f
			}

			formatter, err := output.NewFormatter(format, writer)
			if err != nil {
				return err
			}
			if err := formatter.Format(result); err != nil {
				return fmt.Errorf("failed to write build report: %w", err)
			}

			return buildErr
		}),
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "override the image tag")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the dependency layer cache")
	cmd.Flags().BoolVar(&skipScan, "skip-scan", false, "skip the pre-copy secret scan")
	cmd.Flags().StringVar(&format, "format", "table", "report format: table, json, yaml")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the report to a file instead of stdout")

	return cmd
}
