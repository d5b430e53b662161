package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bianoble/pkgrelay/pkg/pkgrelay"
)

var (
	publishChainID            int64
	publishTags               []string
	publishIncludeProvisioned bool
	publishConcurrency        int
)

var publishCmd = &cobra.Command{
	Use:   "publish <package-ref>...",
	Short: "Copy locally built packages to the remote registry",
	Long: `Copies each package and every package it imports from local storage to
the configured write backend, then registers it under its version and
--tags. Several packages are published concurrently; each tree is still
copied one node at a time, children first.

A package whose destination entry already points at the copied record is
left untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if publishConcurrency < 1 {
			return fmt.Errorf("--concurrency must be at least 1, got %d", publishConcurrency)
		}
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		results := make([]*pkgrelay.PublishResult, len(args))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(publishConcurrency)
		for i, ref := range args {
			g.Go(func() error {
				res, err := client.Publish(gctx, pkgrelay.PublishOptions{
					Ref:                ref,
					ChainID:            publishChainID,
					Tags:               publishTags,
					IncludeProvisioned: publishIncludeProvisioned,
				})
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, res := range results {
			if res.NoOp {
				info("%s: already published, nothing to do", args[i])
				continue
			}
			for _, call := range res.Calls {
				info("published %s", call.URL)
				for _, name := range call.PackagesNames {
					detail("%s (chain %d)", name, call.ChainID)
				}
			}
			detail("copied %d record(s)", len(res.Copied))
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().Int64Var(&publishChainID, "chain-id", 0, "chain id of the build to publish")
	publishCmd.Flags().StringSliceVar(&publishTags, "tags", []string{"latest"}, "tags to register alongside the version")
	publishCmd.Flags().BoolVar(&publishIncludeProvisioned, "include-provisioned", false, "also register every provisioned import")
	publishCmd.Flags().IntVar(&publishConcurrency, "concurrency", 4, "packages published at once")
	_ = publishCmd.MarkFlagRequired("chain-id")
	rootCmd.AddCommand(publishCmd)
}

// Shared by commands that print a list of registry calls.
func printCalls(calls []pkgrelay.PublishCall) {
	for _, call := range calls {
		info("%s", call.URL)
		for _, name := range call.PackagesNames {
			info("  %s", name)
		}
	}
	if len(calls) == 0 {
		info("no provisioned packages")
	}
	detail("%d package(s)", len(calls))
}
