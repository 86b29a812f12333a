package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/config"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

type initOptions struct {
	Name          string
	BaseRef       string
	BaseTag       string
	Installer     string
	Entrypoint    string
	OutputPath    string
	NoInteractive bool
}

func newInitCmd() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a bakefile for a new project",
		Long: `Scaffold a bakefile in the current directory. Missing values are
prompted for interactively unless --no-interactive is set.`,
		Example: `  # Interactive scaffolding
  kiln init

  # Non-interactive, everything from flags
  kiln init --name housing-scraper --base ghcr.io/library/python --base-tag 3.12-slim --no-interactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "image name")
	cmd.Flags().StringVar(&opts.BaseRef, "base", "", "base image reference (without tag)")
	cmd.Flags().StringVar(&opts.BaseTag, "base-tag", "", "base image tag")
	cmd.Flags().StringVar(&opts.Installer, "installer", "", "dependency installer tool")
	cmd.Flags().StringVar(&opts.Entrypoint, "entrypoint", "", "entrypoint argv, space separated")
	cmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "bakefile.yml", "output path for the bakefile")
	cmd.Flags().BoolVar(&opts.NoInteractive, "no-interactive", false, "never prompt, fail on missing values")

	return cmd
}

func runInit(opts *initOptions) error {
	if !opts.NoInteractive {
		if opts.Name == "" {
			err := huh.NewInput().
				Title("Image name").
				Value(&opts.Name).
				Run()
			if err != nil {
				return err
			}
		}

		if opts.BaseRef == "" {
			err := huh.NewSelect[string]().
				Title("Base runtime image").
				Options(
					huh.NewOption("Python 3.12 slim", "ghcr.io/library/python|3.12-slim"),
					huh.NewOption("Python 3.11 slim", "ghcr.io/library/python|3.11-slim"),
					huh.NewOption("Other (enter below)", ""),
				).
				Value(&opts.BaseRef).
				Run()
			if err != nil {
				return err
			}
			if ref, tag, ok := strings.Cut(opts.BaseRef, "|"); ok {
				opts.BaseRef, opts.BaseTag = ref, tag
			}
		}

		if opts.BaseRef == "" {
			err := huh.NewInput().
				Title("Base image reference").
				Value(&opts.BaseRef).
				Run()
			if err != nil {
				return err
			}
		}
		if opts.BaseTag == "" {
			err := huh.NewInput().
				Title("Base image tag").
				Value(&opts.BaseTag).
				Run()
			if err != nil {
				return err
			}
		}

		if opts.Installer == "" {
			err := huh.NewSelect[string]().
				Title("Dependency installer").
				Options(
					huh.NewOption("pip", "pip"),
					huh.NewOption("pip3", "pip3"),
				).
				Value(&opts.Installer).
				Run()
			if err != nil {
				return err
			}
		}

		if opts.Entrypoint == "" {
			err := huh.NewInput().
				Title("Entrypoint").
				Placeholder("python main.py").
				Value(&opts.Entrypoint).
				Run()
			if err != nil {
				return err
			}
		}
	}

	if opts.Name == "" || opts.BaseRef == "" || opts.BaseTag == "" {
		return fmt.Errorf("image name, base reference and base tag are required")
	}
	if opts.Installer == "" {
		opts.Installer = config.DefaultInstaller
	}
	if opts.Entrypoint == "" {
		opts.Entrypoint = "python main.py"
	}

	bf := config.Bakefile{
		Version: 1,
		Image:   config.ImageSection{Name: opts.Name, Tag: config.DefaultImageTag},
		Base: config.BaseSection{
			Ref: opts.BaseRef,
			Tag: opts.BaseTag,
		},
		Dependencies: config.DepsSection{
			Manifest:  "requirements.txt",
			Installer: opts.Installer,
		},
		Workdir:    config.DefaultWorkdir,
		Source:     config.CopySection{Path: "src"},
		Config:     config.CopySection{Path: "config.yml"},
		Entrypoint: strings.Fields(opts.Entrypoint),
	}

	if _, err := os.Stat(opts.OutputPath); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", opts.OutputPath)
	}

	data, err := yaml.Marshal(bf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bakefile: %w", err)
	}

	fmt.Printf("✓ Bakefile written to %s\n", opts.OutputPath)
	fmt.Printf("Run 'kiln build %s' to build the image.\n", opts.OutputPath)

	return nil
}
