package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bianoble/pkgrelay/internal/engine"
	"github.com/bianoble/pkgrelay/pkg/pkgrelay"
)

var (
	pruneDryRun   bool
	pruneFilter   string
	pruneVariants []string
	pruneKeepAge  time.Duration
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove local blobs no registered package uses",
	Long: `Drops local registry entries that do not match --filter-package and
--filter-variant, then removes every local blob that no remaining entry
reaches and that is older than --keep-age. Use --dry-run to see what
would be removed without acting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Prune(ctx, pkgrelay.PruneOptions{
			Filter:   pruneFilter,
			Variants: pruneVariants,
			KeepAge:  pruneKeepAge,
			DryRun:   pruneDryRun,
		})
		if err != nil {
			return err
		}

		if pruneDryRun {
			info("Dry run: no blobs removed.")
		}
		for _, k := range result.Kept {
			detail("%s  %s", k.Action, k.URL)
		}
		if len(result.Removed) == 0 {
			info("Nothing to prune.")
		} else {
			for _, r := range result.Removed {
				info("  %s  %s", r.Action, r.URL)
			}
			info("\nPruned %d blob(s).", len(result.Removed))
		}

		if len(result.Errors) > 0 {
			for _, e := range result.Errors {
				errorf("%s", e)
			}
			return fmt.Errorf("%d error(s) during prune", len(result.Errors))
		}
		return nil
	},
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "show what would be removed without acting")
	pruneCmd.Flags().StringVar(&pruneFilter, "filter-package", "", "only keep entries for this package name")
	pruneCmd.Flags().StringSliceVar(&pruneVariants, "filter-variant", nil, "only keep entries for these <chainId>-<preset> variants")
	pruneCmd.Flags().DurationVar(&pruneKeepAge, "keep-age", engine.DefaultKeepAge, "never remove blobs younger than this")
	rootCmd.AddCommand(pruneCmd)
}
