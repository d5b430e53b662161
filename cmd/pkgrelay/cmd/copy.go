package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bianoble/pkgrelay/pkg/pkgrelay"
)

var (
	copyVariant   string
	copyTags      []string
	copyRecursive bool
)

var copyCmd = &cobra.Command{
	Use:   "copy <name[:version]>",
	Short: "Fetch a package from the remote registry into local storage",
	Long: `Copies the package registered for --variant (<chainId>-<preset>) from the
remote registry into local storage. Only the root record is copied unless
--recursive is set, in which case every import is copied and every
provisioned import registered locally.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		res, err := client.Copy(ctx, pkgrelay.CopyOptions{
			Ref:       args[0],
			Variant:   copyVariant,
			Tags:      copyTags,
			Recursive: copyRecursive,
		})
		if err != nil {
			return err
		}
		if res.NoOp {
			info("%s is already up to date locally", args[0])
			return nil
		}
		for _, receipt := range res.Published {
			info("registered %s", receipt)
		}
		for _, url := range res.Copied {
			detail("copied %s", url)
		}
		return nil
	},
}

func init() {
	copyCmd.Flags().StringVar(&copyVariant, "variant", "", "variant to copy, as <chainId>-<preset>")
	copyCmd.Flags().StringSliceVar(&copyTags, "tags", []string{"latest"}, "tags to register alongside the version")
	copyCmd.Flags().BoolVar(&copyRecursive, "recursive", false, "copy and register every import")
	_ = copyCmd.MarkFlagRequired("variant")
	rootCmd.AddCommand(copyCmd)
}
