package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bianoble/pkgrelay/internal/deploy"
)

var (
	inspectChainID  int64
	inspectWriteDir string
	inspectOutput   string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <package-ref>",
	Short: "Show a package's deployment record",
	Long: `Resolves a package and prints a summary of its record. --output json or
yaml prints the whole record instead. --write-deployments writes one JSON
file per contract, nested by import path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		res, err := client.Inspect(ctx, args[0], inspectChainID, inspectWriteDir)
		if err != nil {
			return err
		}

		switch inspectOutput {
		case "json":
			data, err := json.MarshalIndent(res.Info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, string(data))
		case "yaml":
			data, err := recordYAML(res.Info)
			if err != nil {
				return err
			}
			fmt.Fprint(stdout, string(data))
		case "text":
			printSummary(res.Ref, res.URL, res.MetaURL, res.Info)
		default:
			return fmt.Errorf("unknown output %q: must be one of text, json, yaml", inspectOutput)
		}

		if len(res.Written) > 0 {
			info("wrote %d contract file(s) to %s", len(res.Written), inspectWriteDir)
			for _, f := range res.Written {
				detail("%s", f)
			}
		}
		return nil
	},
}

// recordYAML renders the record's JSON form as YAML so field names
// match the stored document.
func recordYAML(rec *deploy.Info) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func printSummary(ref, url, metaURL string, rec *deploy.Info) {
	tctx := deploy.InitialContext(rec)
	name, _ := rec.Def.Name(tctx)
	ver, _ := rec.Def.Version(tctx)

	info("%s", ref)
	info("  name:     %s", name)
	info("  version:  %s", ver)
	info("  chain id: %d", rec.ChainID)
	info("  status:   %s", rec.Status)
	info("  url:      %s", url)
	if metaURL != "" {
		info("  meta:     %s", metaURL)
	}
	if rec.MiscURL != "" {
		info("  misc:     %s", rec.MiscURL)
	}

	imports := rec.Imports()
	if len(imports) > 0 {
		info("  imports:")
		for _, imp := range imports {
			mark := ""
			if imp.Provisioned() {
				mark = " (provisioned)"
			}
			info("    %s%s", imp.URL, mark)
		}
	}

	var contracts []string
	for name := range contractNames(rec) {
		contracts = append(contracts, name)
	}
	sort.Strings(contracts)
	if len(contracts) > 0 {
		info("  contracts:")
		for _, c := range contracts {
			info("    %s", c)
		}
	}
}

// contractNames returns the contracts declared directly by rec's steps.
func contractNames(rec *deploy.Info) map[string]bool {
	out := make(map[string]bool)
	for _, key := range rec.State.Keys() {
		st, _ := rec.State.Get(key)
		for name := range st.Artifacts.Contracts {
			out[name] = true
		}
	}
	return out
}

func init() {
	inspectCmd.Flags().Int64Var(&inspectChainID, "chain-id", 0, "chain id of the build")
	inspectCmd.Flags().StringVar(&inspectWriteDir, "write-deployments", "", "directory to write contract files to")
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", "text", "output format: text, json or yaml")
	_ = inspectCmd.MarkFlagRequired("chain-id")
	rootCmd.AddCommand(inspectCmd)
}
