package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/forgevcs/pkg/forge"
)

func newBranchesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "branches <project>",
		Short: "List branches with their head commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(opts, false, args[0], func(_ *app, p *forge.Project) error {
				branches, err := p.Branches()
				if err != nil {
					return err
				}
				current := color.New(color.FgGreen, color.Bold)
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, b := range branches {
					marker, name := " ", b.Name
					if b.Default {
						marker, name = "*", current.Sprint(b.Name)
					}
					date := ""
					if !b.Date.IsZero() {
						date = b.Date.Format("2006-01-02")
					}
					fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", marker, name, b.Head.Short(), date, b.Message)
				}
				return tw.Flush()
			})
		},
	}
}

func newBranchCmd(opts *globalOptions) *cobra.Command {
	var del bool
	cmd := &cobra.Command{
		Use:   "branch <project> <name> [start-point]",
		Short: "Create or delete a branch",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(opts, false, args[0], func(_ *app, p *forge.Project) error {
				r := p.Repo()
				if del {
					return r.DeleteBranch(args[1])
				}
				start := "HEAD"
				if len(args) == 3 {
					start = args[2]
				}
				target, err := r.ResolveRef(start)
				if err != nil {
					return err
				}
				if err := r.CreateBranch(args[1], target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created branch %s at %s\n", args[1], target.Short())
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete the branch")
	return cmd
}
