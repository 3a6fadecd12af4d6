package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/forgevcs/pkg/forge"
	"github.com/odvcencio/forgevcs/pkg/object"
	"github.com/odvcencio/forgevcs/pkg/repo"
)

func newCommitCmd(opts *globalOptions) *cobra.Command {
	var (
		message     string
		deletes     []string
		authorName  string
		authorEmail string
		allowEmpty  bool
	)
	cmd := &cobra.Command{
		Use:   "commit <project> <branch> [repo/path=]local-file...",
		Short: "Snapshot files from disk onto a branch",
		Long: "Reads each local file and stores it at the given repository path, or at\n" +
			"the local path itself when no repository path is given.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("commit message is required (use -m)")
			}
			files := make(map[string][]byte, len(args)-2)
			for _, arg := range args[2:] {
				repoPath, local := splitFileArg(arg)
				data, err := os.ReadFile(local)
				if err != nil {
					return err
				}
				files[repoPath] = data
			}
			req := repo.CommitRequest{
				Branch:     args[1],
				Files:      files,
				Deletes:    deletes,
				Message:    message,
				Author:     object.Signature{Name: authorName, Email: authorEmail},
				AllowEmpty: allowEmpty,
			}
			return withProject(opts, false, args[0], func(_ *app, p *forge.Project) error {
				h, err := p.Commit(req)
				if err != nil {
					return err
				}
				subject, _, _ := strings.Cut(message, "\n")
				fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", req.Branch, h.Short(), subject)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringArrayVar(&deletes, "delete", nil, "repository path to remove (repeatable)")
	cmd.Flags().StringVar(&authorName, "author-name", "", "author name (defaults to the committer)")
	cmd.Flags().StringVar(&authorEmail, "author-email", "", "author email")
	cmd.Flags().BoolVar(&allowEmpty, "allow-empty", false, "record a commit even if the tree is unchanged")
	return cmd
}

// splitFileArg splits "repo/path=local" into its parts. Without '=' the
// local path doubles as the repository path.
func splitFileArg(arg string) (repoPath, local string) {
	if before, after, ok := strings.Cut(arg, "="); ok && before != "" && after != "" {
		return before, after
	}
	return filepath.ToSlash(filepath.Clean(arg)), arg
}
