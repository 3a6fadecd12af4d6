package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/forgevcs/pkg/forge"
)

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <project>",
		Short: "Check that every object reachable from the refs is present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(opts, false, args[0], func(_ *app, p *forge.Project) error {
				conn, err := p.Verify()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(conn.Missing) > 0 {
					for _, h := range conn.Missing {
						fmt.Fprintf(out, "missing %s\n", h)
					}
					return fmt.Errorf("verify %s: %d missing object(s)", p.ID, len(conn.Missing))
				}
				fmt.Fprintf(out, "ok: verified %d reachable object(s)\n", len(conn.Reachable))
				return nil
			})
		},
	}
}
