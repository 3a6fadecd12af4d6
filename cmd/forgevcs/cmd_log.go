package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/forgevcs/pkg/forge"
	"github.com/odvcencio/forgevcs/pkg/history"
)

func newLogCmd(opts *globalOptions) *cobra.Command {
	var (
		oneline bool
		limit   int
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "log <project> [ref]",
		Short: "Show commit history",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := "HEAD"
			if len(args) == 2 {
				ref = args[1]
			}
			return withProject(opts, false, args[0], func(_ *app, p *forge.Project) error {
				entries, err := p.Log(ref, history.Options{Depth: limit, AllParents: all})
				if err != nil {
					return err
				}
				hash := color.New(color.FgYellow)
				out := cmd.OutOrStdout()
				for _, e := range entries {
					c := e.Commit
					subject, _, _ := strings.Cut(c.Message, "\n")
					if oneline {
						fmt.Fprintf(out, "%s %s\n", hash.Sprint(e.Hash.Short()), subject)
						continue
					}
					fmt.Fprintf(out, "%s\n", hash.Sprintf("commit %s", e.Hash))
					if len(c.Parents) > 1 {
						shorts := make([]string, len(c.Parents))
						for i, ph := range c.Parents {
							shorts[i] = ph.Short()
						}
						fmt.Fprintf(out, "Merge:  %s\n", strings.Join(shorts, " "))
					}
					fmt.Fprintf(out, "Author: %s <%s>\n", c.Author.Name, c.Author.Email)
					fmt.Fprintf(out, "Date:   %s\n\n", c.Author.When.Format("2006-01-02 15:04:05 -0700"))
					for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
						fmt.Fprintf(out, "    %s\n", line)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits to show (0 for all)")
	cmd.Flags().BoolVar(&all, "all-parents", false, "follow every parent, ordered by committer time")
	return cmd
}
