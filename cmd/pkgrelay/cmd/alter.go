package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bianoble/pkgrelay/pkg/pkgrelay"
)

var alterChainID int64

var alterCmd = &cobra.Command{
	Use:   "alter <package-ref> <command> [args...]",
	Short: "Edit a locally built package outside of a build",
	Long: `Edits the record registered for a package in the data directory, writes
the edited record and points the package name at it.

Commands:
  set-url <misc-url>                      replace the misc blob url
  set-contract-address <name> <address>   rewrite a contract's address
  mark-complete                           mark the build complete
  mark-incomplete                         mark the build partial`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		res, err := client.Alter(ctx, pkgrelay.AlterOptions{
			Ref:     args[0],
			ChainID: alterChainID,
			Command: pkgrelay.AlterCommand(args[1]),
			Args:    args[2:],
		})
		if err != nil {
			return err
		}
		info("%s", res.URL)
		detail("was %s", res.Previous.URL)
		return nil
	},
}

func init() {
	alterCmd.Flags().Int64Var(&alterChainID, "chain-id", 0, "chain id of the build to alter")
	_ = alterCmd.MarkFlagRequired("chain-id")
	rootCmd.AddCommand(alterCmd)
}
