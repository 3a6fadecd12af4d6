package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/forgevcs/pkg/forge"
	"github.com/odvcencio/forgevcs/pkg/merge"
)

func newMergeCmd(opts *globalOptions) *cobra.Command {
	var (
		strategy string
		message  string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "merge <project> <source> <target>",
		Short: "Land the source branch on the target branch",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := merge.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			req := merge.Request{Source: args[1], Target: args[2], Strategy: s, Message: message}
			return withProject(opts, true, args[0], func(_ *app, p *forge.Project) error {
				res, err := p.Merge(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}
				if res.AlreadyMerged {
					fmt.Fprintf(out, "Already up to date: %s is merged into %s\n", req.Source, req.Target)
					return nil
				}
				ok := color.New(color.FgGreen)
				ok.Fprintf(out, "%s %s into %s: %s\n", res.Strategy, req.Source, req.Target, res.CommitID)
				if len(res.Replayed) > 0 {
					fmt.Fprintf(out, "replayed %d commit(s) onto %s\n", len(res.Replayed), res.PreviousHead.Short())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", string(merge.StrategyMerge), "merge, squash or rebase")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message for merge and squash")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
