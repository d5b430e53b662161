package cmd

import (
	"github.com/spf13/cobra"
)

var resolveChainID int64

var resolveCmd = &cobra.Command{
	Use:   "resolve <package-ref>",
	Short: "Print the record url registered for a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		res, err := client.Resolve(ctx, args[0], resolveChainID)
		if err != nil {
			return err
		}
		info("%s", res.URL)
		if res.MetaURL != "" {
			detail("meta: %s", res.MetaURL)
		}
		return nil
	},
}

var provisionedChainID int64
var provisionedTags []string

var provisionedCmd = &cobra.Command{
	Use:   "provisioned <package-ref>",
	Short: "List the packages a publish would register",
	Long: `Walks the locally built package tree and prints, for the package and
every provisioned import, the names a publish with --include-provisioned
would register. Nothing is copied or written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		calls, err := client.Provisioned(ctx, args[0], provisionedChainID, provisionedTags)
		if err != nil {
			return err
		}
		printCalls(calls)
		return nil
	},
}

func init() {
	resolveCmd.Flags().Int64Var(&resolveChainID, "chain-id", 0, "chain id to resolve for")
	_ = resolveCmd.MarkFlagRequired("chain-id")
	rootCmd.AddCommand(resolveCmd)

	provisionedCmd.Flags().Int64Var(&provisionedChainID, "chain-id", 0, "chain id of the build")
	provisionedCmd.Flags().StringSliceVar(&provisionedTags, "tags", []string{"latest"}, "tags for the root package")
	_ = provisionedCmd.MarkFlagRequired("chain-id")
	rootCmd.AddCommand(provisionedCmd)
}
