package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/scan"
)

func init() {
	rootCmd.AddCommand(newScanCmd())
}

func newScanCmd() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "scan <path>...",
		Short: "Scan files or directories for leaked credentials",
		Long: `Scan files or directories for leaked credentials. The same detector
runs automatically before every build copies its source tree; this
command runs it standalone, for CI gates or ad-hoc checks.`,
		Example: `  # Scan a source tree and a config file
  kiln scan ./src ./config.yml

  # Emit a SARIF report for CI ingestion
  kiln scan ./src --format sarif -o findings.sarif`,
		Args: cobra.MinimumNArgs(1),
		RunE: withRuntime(func(rt *Runtime, cmd *cobra.Command, args []string) error {
			scanner, err := scan.NewScanner()
			if err != nil {
				return err
			}

			result, err := scanner.ScanPaths(rt.Context, args...)
			if err != nil {
				return err
			}

			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			switch format {
			case "table":
				printScanTable(out, result)
			case "sarif":
				if err := scan.WriteSARIF(out, result); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported format %q (supported: table, sarif)", format)
			}

			if len(result.Findings) > 0 {
				return fmt.Errorf("found %d potential secrets", len(result.Findings))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table, sarif)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")

	return cmd
}

func printScanTable(w *os.File, result *scan.Result) {
	fmt.Fprintf(w, "Scanned %d files in %s\n", result.FilesScanned, result.Duration.Round(time.Millisecond))
	if len(result.Findings) == 0 {
		fmt.Fprintln(w, "No secrets found.")
		return
	}
	fmt.Fprintln(w)
	for _, f := range result.Findings {
		fmt.Fprintf(w, "  %s:%d\n", f.File, f.StartLine)
		fmt.Fprintf(w, "    rule:   %s\n", f.RuleID)
		fmt.Fprintf(w, "    secret: %s\n", f.Secret)
	}
}
