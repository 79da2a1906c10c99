// Package cli wires the load-generation engine to a command-line interface.
// Everything here is caller-side: flag parsing, signal handling, rendering
// and pass/fail exit codes. The engine never sees any of it.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var verbose bool

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:     "devstress",
	Short:   "Zero-config HTTP load testing for developers",
	Version: version,
	Long: `DevStress generates controlled concurrent HTTP load against a target
service and produces latency/throughput statistics usable for pass/fail
decisions in development and CI workflows.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(historyCmd)
}
