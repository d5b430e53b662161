package cmd

import (
	"github.com/spf13/cobra"
)

var pinCmd = &cobra.Command{
	Use:   "pin <url>",
	Short: "Copy a package tree into the write backend without registering it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		res, err := client.Pin(ctx, args[0])
		if err != nil {
			return err
		}
		for _, url := range res.Copied {
			detail("copied %s", url)
		}
		info("%s", res.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pinCmd)
}
