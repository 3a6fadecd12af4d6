package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	ErrRepositoryAlreadyExists = errors.New("repository already exists")
	ErrNotRepository           = errors.New("not a repository")
)

// DefaultBranchName is used by Init when no branch name is given.
const DefaultBranchName = "main"

// layoutDirs must exist directly under the repository root.
var layoutDirs = []string{
	"objects",
	filepath.Join("objects", "info"),
	filepath.Join("objects", "pack"),
	filepath.Join("refs", "heads"),
	filepath.Join("refs", "tags"),
}

// Init creates an empty bare repository at path whose HEAD points at
// refs/heads/<defaultBranch>. path must be absent or an empty directory,
// otherwise ErrRepositoryAlreadyExists is returned.
//
// The repository database is written by go-git and then normalized so that
// HEAD, objects/ and refs/ sit directly under path even if the writer nested
// them in a ".git" subdirectory.
func Init(path, defaultBranch string) (*Repo, error) {
	if defaultBranch == "" {
		defaultBranch = DefaultBranchName
	}
	if err := ValidateBranchName(defaultBranch); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("init: abs path: %w", err)
	}
	if err := ensureEmptyDir(abs); err != nil {
		return nil, err
	}

	_, err = git.PlainInitWithOptions(abs, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(defaultBranch)},
		Bare:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", abs, err)
	}
	if err := normalizeLayout(abs, defaultBranch); err != nil {
		return nil, fmt.Errorf("init %s: %w", abs, err)
	}
	return newRepo(abs), nil
}

func ensureEmptyDir(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("init: mkdir %s: %w", path, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("init: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("init %s: %w", path, ErrRepositoryAlreadyExists)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("init: read %s: %w", path, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("init %s: %w", path, ErrRepositoryAlreadyExists)
	}
	return nil
}

// normalizeLayout hoists a nested ".git" database into root, creates the
// canonical directories and makes sure HEAD exists.
func normalizeLayout(root, defaultBranch string) error {
	nested := filepath.Join(root, ".git")
	if info, err := os.Stat(nested); err == nil && info.IsDir() {
		entries, err := os.ReadDir(nested)
		if err != nil {
			return fmt.Errorf("normalize layout: %w", err)
		}
		for _, e := range entries {
			src := filepath.Join(nested, e.Name())
			dst := filepath.Join(root, e.Name())
			if _, err := os.Lstat(dst); err == nil {
				return fmt.Errorf("normalize layout: %s exists in both %s and %s", e.Name(), nested, root)
			}
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("normalize layout: hoist %s: %w", e.Name(), err)
			}
		}
		if err := os.Remove(nested); err != nil {
			return fmt.Errorf("normalize layout: remove %s: %w", nested, err)
		}
	}

	for _, d := range layoutDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return fmt.Errorf("normalize layout: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(root, "HEAD")
	if _, err := os.Stat(headPath); os.IsNotExist(err) {
		if err := writeHead(root, "refs/heads/"+defaultBranch); err != nil {
			return fmt.Errorf("normalize layout: %w", err)
		}
	}
	return nil
}

// Open opens the bare repository at path. The directory must contain HEAD
// and objects/.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}
	if info, err := os.Stat(filepath.Join(abs, "HEAD")); err != nil || info.IsDir() {
		return nil, fmt.Errorf("open %s: %w", abs, ErrNotRepository)
	}
	if info, err := os.Stat(filepath.Join(abs, "objects")); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open %s: %w", abs, ErrNotRepository)
	}
	return newRepo(abs), nil
}

// Head reads HEAD. If it is symbolic ("ref: refs/heads/main") the target ref
// name is returned, otherwise the raw detached hash.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.Root, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, "ref: "); ok {
		return strings.TrimSpace(target), nil
	}
	return content, nil
}

// DefaultBranch returns the branch HEAD points at, or "" when HEAD is
// detached.
func (r *Repo) DefaultBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("default branch: %w", err)
	}
	name, ok := strings.CutPrefix(head, "refs/heads/")
	if !ok {
		return "", nil
	}
	return name, nil
}

// SetDefaultBranch points HEAD at refs/heads/<name>. The branch does not have
// to exist yet.
func (r *Repo) SetDefaultBranch(name string) error {
	if err := ValidateBranchName(name); err != nil {
		return fmt.Errorf("set default branch: %w", err)
	}
	if err := writeHead(r.Root, "refs/heads/"+name); err != nil {
		return fmt.Errorf("set default branch: %w", err)
	}
	return nil
}

func writeHead(root, target string) error {
	tmp, err := os.CreateTemp(root, ".HEAD-*")
	if err != nil {
		return fmt.Errorf("write HEAD: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString("ref: " + target + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write HEAD: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write HEAD: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write HEAD: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(root, "HEAD")); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write HEAD: %w", err)
	}
	return nil
}
