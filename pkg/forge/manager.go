// Package forge hosts one bare repository per project under a storage root
// and exposes the diff, merge and history operations a forge service needs.
package forge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/forgevcs/pkg/merge"
	"github.com/odvcencio/forgevcs/pkg/object"
	"github.com/odvcencio/forgevcs/pkg/repo"
)

var (
	ErrInvalidProjectID = errors.New("invalid project id")
	ErrProjectNotFound  = errors.New("project not found")
)

const repoSuffix = ".git"

// Manager maps project ids to repositories at Root/<id>.git.
type Manager struct {
	Root string
	// DefaultBranch is the HEAD branch of new repositories.
	DefaultBranch string
	// Committer signs merge and snapshot commits when the caller gives no
	// identity.
	Committer object.Signature
	Logger    *zap.Logger
	// Recorder, if set, is told about every completed merge.
	Recorder merge.Recorder
}

// ValidateProjectID accepts ids made of letters, digits, '.', '_' and '-'.
func ValidateProjectID(id string) error {
	if id == "" || id == "." || id == ".." || strings.HasSuffix(id, repoSuffix) {
		return fmt.Errorf("%w: %q", ErrInvalidProjectID, id)
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidProjectID, id)
		}
	}
	return nil
}

// Path returns the repository directory of a project.
func (m *Manager) Path(projectID string) (string, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return "", err
	}
	return filepath.Join(m.Root, projectID+repoSuffix), nil
}

func (m *Manager) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

// Create initializes the repository of a new project. It fails with
// repo.ErrRepositoryAlreadyExists if the project already has one.
func (m *Manager) Create(projectID string) (*Project, error) {
	path, err := m.Path(projectID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create project %s: %w", projectID, err)
	}
	r, err := repo.Init(path, m.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("create project %s: %w", projectID, err)
	}
	m.logger().Info("project created", zap.String("project", projectID), zap.String("path", path))
	return m.project(projectID, r), nil
}

// Open returns the project, or an error matching ErrProjectNotFound.
func (m *Manager) Open(projectID string) (*Project, error) {
	path, err := m.Path(projectID)
	if err != nil {
		return nil, err
	}
	r, err := repo.Open(path)
	if err != nil {
		if errors.Is(err, repo.ErrNotRepository) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return nil, fmt.Errorf("open project %s: %w", projectID, err)
	}
	return m.project(projectID, r), nil
}

func (m *Manager) project(id string, r *repo.Repo) *Project {
	if m.Committer.Name != "" || m.Committer.Email != "" {
		r.Identity = m.Committer
	}
	return &Project{ID: id, repo: r, manager: m, log: m.logger().With(zap.String("project", id))}
}

// Exists reports whether the project has a repository.
func (m *Manager) Exists(projectID string) bool {
	_, err := m.Open(projectID)
	return err == nil
}

// Delete removes the project's repository. Deleting a missing project is not
// an error.
func (m *Manager) Delete(projectID string) error {
	path, err := m.Path(projectID)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete project %s: %w", projectID, err)
	}
	m.logger().Info("project deleted", zap.String("project", projectID))
	return nil
}

// List returns the ids of every project under Root, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var ids []string
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), repoSuffix)
		if !ok || !e.IsDir() || ValidateProjectID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
