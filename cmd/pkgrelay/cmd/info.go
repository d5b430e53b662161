package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/bianoble/pkgrelay/internal/config"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show pkgrelay settings and storage",
	Long: `Displays the pkgrelay version, the settings files consulted, the data
directory, the registries in lookup order and each blob backend with its
size where the backend can report it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Info(ctx, version)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pkgrelay %s\n", result.Version)

		layers := config.DiscoverPaths(config.DiscoverOptions{ProjectPath: configPath})
		if config.NoInherit() {
			layers = layers[len(layers)-1:]
		}
		fmt.Fprintln(out, "  settings:")
		for _, l := range layers {
			status := "loaded"
			if _, err := config.Parse(l.Path); errors.Is(err, fs.ErrNotExist) {
				status = "not found"
			} else if err != nil {
				status = "error: " + err.Error()
			}
			fmt.Fprintf(out, "    %-10s %s (%s)\n", string(l.Level)+":", l.Path, status)
		}

		fmt.Fprintf(out, "  data dir:      %s\n", client.Config().DataDir)
		fmt.Fprintf(out, "  registry:      %s\n", result.Registry)
		for i, r := range result.Registries {
			fmt.Fprintf(out, "    %d. %s\n", i+1, r)
		}
		fmt.Fprintf(out, "  entries:       %d\n", result.Entries)
		fmt.Fprintf(out, "  write backend: %s\n", result.Default)

		fmt.Fprintln(out, "\nBackends:")
		for _, b := range result.Backends {
			size := "-"
			if b.Blobs > 0 {
				size = fmt.Sprintf("%d blob(s), %s", b.Blobs, humanSize(b.Size))
			}
			fmt.Fprintf(out, "  %-8s %s  %s\n", b.Scheme, b.Label, size)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
