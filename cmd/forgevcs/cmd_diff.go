package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/forgevcs/pkg/diff"
	"github.com/odvcencio/forgevcs/pkg/forge"
)

func newDiffCmd(opts *globalOptions) *cobra.Command {
	var stat bool
	cmd := &cobra.Command{
		Use:   "diff <project> <from> <to>",
		Short: "Show changes between two revisions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(opts, false, args[0], func(_ *app, p *forge.Project) error {
				res, err := p.Diff(args[1], args[2])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if stat {
					fmt.Fprint(out, diff.FormatStat(res))
					return nil
				}
				for _, f := range res.Files {
					printFileDiff(out, f)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&stat, "stat", false, "show a diffstat instead of patches")
	return cmd
}

func printFileDiff(out io.Writer, f diff.FileDiff) {
	header := color.New(color.Bold)
	hunk := color.New(color.FgCyan)
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)

	header.Fprintf(out, "diff %s (%s)\n", f.Path, f.Status)
	if f.Binary || f.Err != nil {
		fmt.Fprintln(out, f.Text)
		return
	}
	for _, line := range strings.SplitAfter(f.Text, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			header.Fprint(out, line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprint(out, line)
		case strings.HasPrefix(line, "+"):
			added.Fprint(out, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprint(out, line)
		default:
			fmt.Fprint(out, line)
		}
	}
	if !strings.HasSuffix(f.Text, "\n") {
		fmt.Fprintln(out)
	}
}
