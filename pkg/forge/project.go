package forge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/odvcencio/forgevcs/pkg/diff"
	"github.com/odvcencio/forgevcs/pkg/history"
	"github.com/odvcencio/forgevcs/pkg/merge"
	"github.com/odvcencio/forgevcs/pkg/object"
	"github.com/odvcencio/forgevcs/pkg/repo"
)

// Project is an opened project repository.
type Project struct {
	ID      string
	repo    *repo.Repo
	manager *Manager
	log     *zap.Logger
}

// Repo returns the underlying repository.
func (p *Project) Repo() *repo.Repo { return p.repo }

// Diff compares two revisions. Files whose patch could not be generated
// carry a placeholder patch and are logged; they never fail the diff.
func (p *Project) Diff(from, to string) (*diff.Result, error) {
	a, err := p.repo.ResolveRef(from)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	b, err := p.repo.ResolveRef(to)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	res, err := diff.Compare(p.repo.Store, a, b)
	if err != nil {
		return nil, err
	}
	for _, f := range res.Failed() {
		p.log.Warn("patch generation failed",
			zap.String("path", f.Path),
			zap.String("from", string(a)),
			zap.String("to", string(b)),
			zap.Error(f.Err),
		)
	}
	return res, nil
}

// Merge lands req.Source on req.Target. An empty committer is filled in
// with the manager's identity.
func (p *Project) Merge(ctx context.Context, req merge.Request) (*merge.Result, error) {
	if req.Committer.Name == "" && req.Committer.Email == "" {
		req.Committer = p.manager.Committer
	}
	opts := []merge.Option{merge.WithLogger(p.log), merge.WithProject(p.ID)}
	if p.manager.Recorder != nil {
		opts = append(opts, merge.WithRecorder(p.manager.Recorder))
	}
	return merge.NewEngine(p.repo, opts...).Merge(ctx, req)
}

// Commit snapshots files onto a branch.
func (p *Project) Commit(req repo.CommitRequest) (object.Hash, error) {
	if req.Committer.Name == "" && req.Committer.Email == "" {
		req.Committer = p.manager.Committer
	}
	h, err := p.repo.CommitChanges(req)
	if err != nil {
		return h, err
	}
	p.log.Debug("snapshot committed", zap.String("branch", req.Branch), zap.String("commit", string(h)))
	return h, nil
}

func (p *Project) Branches() ([]history.Branch, error) {
	return history.Branches(p.repo)
}

func (p *Project) Log(ref string, opts history.Options) ([]history.Entry, error) {
	return history.Log(p.repo, ref, opts)
}

// ReadFile returns the content of path at revision ref.
func (p *Project) ReadFile(ref, path string) ([]byte, error) {
	h, err := p.repo.ResolveRef(ref)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	data, _, err := p.repo.ReadFileAt(h, path)
	return data, err
}

// Tags maps tag names to the commit each one peels to.
func (p *Project) Tags() (map[string]object.Hash, error) {
	return p.repo.ListTags()
}

// Verify walks the object graph from every ref and reports the objects it
// reaches and the ones that are missing.
func (p *Project) Verify() (*object.Connectivity, error) {
	refs, err := p.repo.ListRefs("")
	if err != nil {
		return nil, err
	}
	roots := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		roots = append(roots, h)
	}
	conn, err := p.repo.Store.Walk(roots)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", p.ID, err)
	}
	if len(conn.Missing) > 0 {
		p.log.Warn("repository has missing objects", zap.Int("missing", len(conn.Missing)))
	}
	return conn, nil
}
