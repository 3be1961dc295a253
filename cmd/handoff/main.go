package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "handoff",
		Short:         "Hand tasks off to QA",
		Long:          `handoff checks that a task is ready for QA, gathers its preview links and screenshots, and posts the hand-off comment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.qa-handoff/config.yaml)")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newServeCmd(&configPath),
		newWatchCmd(&configPath),
		newHistoryCmd(&configPath),
		newConfigCmd(&configPath),
		newDoctorCmd(&configPath),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show handoff version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "handoff v%s\n", version)
		},
	}
}
