package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Aliases: []string{"get"},
	Short:   "Print a stored session",
	Long:    `Print the fields of the session stored under <id> as JSON or YAML.`,
	Args:    cobra.ExactArgs(1),
	RunE:    runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "json", "output format (json, yaml)")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.manager.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fields := map[string]any(sess.Serialize())
	out := cmd.OutOrStdout()

	switch showOutput {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(fields)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(fields); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q (expected json or yaml)", showOutput)
}
