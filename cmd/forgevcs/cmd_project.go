package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/forgevcs/pkg/forge"
)

// withProject opens the app and the named project, runs fn and closes the
// app again.
func withProject(opts *globalOptions, withJournal bool, id string, fn func(a *app, p *forge.Project) error) (err error) {
	a, err := newApp(opts, withJournal)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	p, err := a.manager.Open(id)
	if err != nil {
		return err
	}
	return fn(a, p)
}

func newInitCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init <project>",
		Short: "Create the repository of a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			p, err := a.manager.Create(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty repository for %s in %s\n", p.ID, p.Repo().Root)
			return nil
		},
	}
}

func newProjectsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List hosted projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			ids, err := a.manager.List()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
