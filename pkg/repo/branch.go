package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/forgevcs/pkg/object"
)

var (
	ErrBranchExists        = errors.New("branch already exists")
	ErrDeleteDefaultBranch = errors.New("cannot delete the default branch")
)

// ValidateBranchName checks a short branch name such as "main" or
// "feature/login". The full ref "refs/heads/<name>" must be a valid ref name.
func ValidateBranchName(name string) error {
	if strings.TrimSpace(name) != name || name == "" {
		return fmt.Errorf("%w: branch %q", ErrInvalidRefName, name)
	}
	if strings.HasPrefix(name, "-") || name == "HEAD" {
		return fmt.Errorf("%w: branch %q", ErrInvalidRefName, name)
	}
	if err := validateRefName("refs/heads/" + name); err != nil {
		return fmt.Errorf("%w: branch %q", ErrInvalidRefName, name)
	}
	return nil
}

// CreateBranch creates refs/heads/<name> pointing at target. It fails with
// ErrBranchExists if the branch is already present.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	if err := ValidateBranchName(name); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	err := r.WriteRef("refs/heads/"+name, target, RefUpdate{Reason: "branch: created"})
	if err != nil {
		if errors.Is(err, ErrRefUpdateConflict) && !errors.Is(err, ErrRefLocked) {
			return fmt.Errorf("create branch %q: %w", name, ErrBranchExists)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes refs/heads/<name> and its reflog. The branch HEAD
// points at cannot be deleted.
func (r *Repo) DeleteBranch(name string) error {
	if err := ValidateBranchName(name); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	current, err := r.DefaultBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch %q: %w", name, ErrDeleteDefaultBranch)
	}
	if err := r.DeleteRef("refs/heads/"+name, ""); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	return nil
}

// ListBranchNames returns every branch under refs/heads, sorted.
func (r *Repo) ListBranchNames() ([]string, error) {
	refs, err := r.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	names := make([]string, 0, len(refs))
	for _, name := range SortedRefNames(refs) {
		names = append(names, strings.TrimPrefix(name, "heads/"))
	}
	sort.Strings(names)
	return names, nil
}
