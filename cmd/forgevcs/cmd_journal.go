package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newJournalCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal [project]",
		Short: "Show recorded merges, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil {
					err = cerr
				}
			}()
			if a.journal == nil {
				return fmt.Errorf("no journal configured (set journal.dir)")
			}
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			entries, err := a.journal.List(project, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s -> %s\t%s\n",
					e.At.UTC().Format("2006-01-02T15:04:05Z"), e.Project, e.Strategy, e.Source, e.Target, e.Commit.Short())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries (0 for all)")
	return cmd
}
