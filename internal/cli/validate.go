package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/loadsim/internal/config"
	"github.com/wesleyorama2/loadsim/internal/output"
)

func newValidateCmd() *cobra.Command {
	var configFile string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile, noColor, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func validateConfig(path string, noColor bool, w io.Writer) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	plain := !output.UseColors(w, noColor)

	// Workloads may name templates that do not exist; that only fails when
	// the run starts them.
	for _, missing := range cfg.UnresolvedTemplates() {
		fmt.Fprintf(w, "%s unknown template: %s\n", output.WarningIcon(plain), missing)
	}
	fmt.Fprintf(w, "%s %s: %d templates, %d workloads\n",
		output.SuccessIcon(plain), path, len(cfg.Templates), len(cfg.Workloads))
	return nil
}
