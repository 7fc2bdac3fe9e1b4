package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/loadsim/internal/output"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "loadsim",
		Short:   "A configuration-driven MongoDB load generator",
		Version: version,
		Long: `Loadsim runs concurrent workloads against MongoDB. Each workload repeats
one operation (insert, find, update, delete, replace, aggregate or a raw
command) on documents generated from a template, at a fixed concurrency and
an optional pace, and reports throughput and latency as it goes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the root command and prints any error. This is called by
// main.main().
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", output.ErrorIcon(!output.UseColors(os.Stderr, false)), err)
		return err
	}
	return nil
}
