package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts globalOptions
	root := &cobra.Command{
		Use:           "forgevcs",
		Short:         "Server-side repositories for a code forge",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a forgevcs.toml file")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(&opts))
	root.AddCommand(newProjectsCmd(&opts))
	root.AddCommand(newBranchesCmd(&opts))
	root.AddCommand(newBranchCmd(&opts))
	root.AddCommand(newLogCmd(&opts))
	root.AddCommand(newDiffCmd(&opts))
	root.AddCommand(newCommitCmd(&opts))
	root.AddCommand(newMergeCmd(&opts))
	root.AddCommand(newTagsCmd(&opts))
	root.AddCommand(newVerifyCmd(&opts))
	root.AddCommand(newJournalCmd(&opts))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "forgevcs %s\n", version)
		},
	}
}
