package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/expr-lang/expr"
	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/image"
)

func init() {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the layer cache",
	}
	cacheCmd.AddCommand(newCacheListCmd())
	cacheCmd.AddCommand(newCachePruneCmd())
	rootCmd.AddCommand(cacheCmd)
}

// cacheEntryEnv is the expression environment for --filter on prune.
type cacheEntryEnv struct {
	Key       string `expr:"key"`
	Kind      string `expr:"kind"`
	Size      int64  `expr:"size"`
	AgeDays   int    `expr:"age_days"`
	CreatedAt string `expr:"created_at"`
}

func entryEnv(e image.CacheEntry) cacheEntryEnv {
	return cacheEntryEnv{
		Key:       e.Key,
		Kind:      e.Kind,
		Size:      e.Size,
		AgeDays:   e.AgeDays(),
		CreatedAt: e.CreatedAt.Format("2006-01-02"),
	}
}

// selectEntries returns the entries the filter expression matches. An
// empty expression matches everything.
func selectEntries(entries []image.CacheEntry, filterExpr string) ([]image.CacheEntry, error) {
	if filterExpr == "" {
		return entries, nil
	}
	program, err := expr.Compile(filterExpr,
		expr.Env(cacheEntryEnv{}),
		expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid --filter expression: %w\nExample: kind == 'deps' && age_days > 7", err)
	}

	var selected []image.CacheEntry
	for _, e := range entries {
		out, err := expr.Run(program, entryEnv(e))
		if err != nil {
			return nil, fmt.Errorf("filter evaluation failed: %w", err)
		}
		if out.(bool) {
			selected = append(selected, e)
		}
	}
	return selected, nil
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached layers",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(rt *Runtime, cmd *cobra.Command, args []string) error {
			entries, err := rt.Cache.Entries()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("cache is empty")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tKIND\tSIZE\tAGE")
			for _, e := range entries {
				fmt.Fprintf(w, "%.12s\t%s\t%s\t%dd\n", e.Key, e.Kind, formatSize(e.Size), e.AgeDays())
			}
			return w.Flush()
		}),
	}
}

func newCachePruneCmd() *cobra.Command {
	var filterExpr string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached layers",
		Long: `Remove cached layers. With no filter every entry is removed; --filter
keeps entries the expression evaluates false for.`,
		Example: `  # Drop everything
  kiln cache prune

  # Drop dependency layers older than a week
  kiln cache prune --filter "kind == 'deps' && age_days > 7"

  # See what would go without removing anything
  kiln cache prune --filter "size > 100000000" --dry-run`,
		Args: cobra.NoArgs,
		RunE: withRuntime(func(rt *Runtime, cmd *cobra.Command, args []string) error {
			entries, err := rt.Cache.Entries()
			if err != nil {
				return err
			}
			selected, err := selectEntries(entries, filterExpr)
			if err != nil {
				return err
			}

			var pruned int
			var reclaimed int64
			for _, e := range selected {
				if dryRun {
					fmt.Printf("would remove %.12s (%s, %s)\n", e.Key, e.Kind, formatSize(e.Size))
				} else {
					if err := rt.Cache.Remove(e.Key); err != nil {
						return err
					}
				}
				pruned++
				reclaimed += e.Size
			}

			if dryRun {
				fmt.Printf("%d entries, %s reclaimable\n", pruned, formatSize(reclaimed))
			} else {
				fmt.Printf("removed %d entries, reclaimed %s\n", pruned, formatSize(reclaimed))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&filterExpr, "filter", "", "expression selecting entries to remove")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report matches without removing them")

	return cmd
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
