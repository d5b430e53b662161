package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bianoble/pkgrelay/pkg/pkgrelay"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	configPath string
	logLevel   string
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "pkgrelay",
	Short: "Resolve, cache and redistribute deployment packages",
	Long: `pkgrelay moves built deployment packages between content-addressed
storage backends (local files, IPFS, S3) and name registries. A package
and every package it imports are copied as one tree, children first, and
registered under their version and tags at the destination.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pkgrelay %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "pkgrelay.yaml", "path to settings file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "detailed output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "minimal output (errors only)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

// newClient builds a library client from the global flags.
func newClient(ctx context.Context) (*pkgrelay.Client, error) {
	c, err := pkgrelay.New(ctx, pkgrelay.Options{ConfigPath: configPath})
	if err != nil {
		return nil, fmt.Errorf("loading settings %s: %w", configPath, err)
	}
	return c, nil
}
