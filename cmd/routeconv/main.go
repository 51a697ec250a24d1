package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitCodeFailure = 1
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd assembles the command tree.
// Params: none.
// Returns: root cobra command.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "routeconv",
		Short:         "Measure route convergence on network devices",
		Long:          `routeconv polls route counters from many devices in parallel, aligns them into time series and reports convergence time and rate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCollectCmd(), newProbeCmd(), newVersionCmd())
	return root
}

// newVersionCmd prints build information.
// Params: none.
// Returns: version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "routeconv version=%s commit=%s date=%s\n", version, commit, date)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFailure)
	}
}
