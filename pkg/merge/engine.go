// Package merge lands one branch on another using a merge commit, a squash
// commit or a rebase, and moves the target ref exactly once.
package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/odvcencio/forgevcs/pkg/object"
	"github.com/odvcencio/forgevcs/pkg/repo"
)

// Request names the branches of a merge. Source and Target are short branch
// names. An empty Author defaults to the Committer, and an empty Committer to
// the repository identity.
type Request struct {
	Source   string
	Target   string
	Strategy Strategy

	Message   string
	Author    object.Signature
	Committer object.Signature
}

// Result describes a completed merge.
type Result struct {
	// CommitID is the new target head. For an already merged source it is
	// the unchanged target head.
	CommitID      object.Hash `json:"commitId"`
	Strategy      Strategy    `json:"strategy"`
	AlreadyMerged bool        `json:"alreadyMerged"`
	Base          object.Hash `json:"base,omitempty"`
	// Replayed lists the commits a rebase created, oldest first.
	Replayed     []object.Hash `json:"replayed,omitempty"`
	PreviousHead object.Hash   `json:"previousHead"`
	OperationID  string        `json:"operationId"`
}

// Record is handed to the Recorder after the target ref moved.
type Record struct {
	OperationID  string
	Project      string
	Source       string
	Target       string
	Strategy     Strategy
	Commit       object.Hash
	PreviousHead object.Hash
	Replayed     int
	At           time.Time
}

// Recorder receives completed merges, e.g. to feed repository history.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Engine runs merges against one repository.
type Engine struct {
	repo     *repo.Repo
	project  string
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
	newID    func() string

	// beforeRefUpdate runs between applying and the ref write; tests use it
	// to race the target ref.
	beforeRefUpdate func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the recorder notified after successful merges.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithProject tags log lines and records with a project id.
func WithProject(id string) Option {
	return func(e *Engine) { e.project = id }
}

// WithClock overrides the time source for committer timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an Engine for r.
func NewEngine(r *repo.Repo, opts ...Option) *Engine {
	e := &Engine{
		repo:   r,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the state of one Merge call.
type run struct {
	e     *Engine
	req   Request
	state State
	log   *zap.Logger

	sourceHead object.Hash
	targetHead object.Hash
	committer  object.Signature
}

func (m *run) advance(s State, fields ...zap.Field) {
	m.state = s
	m.log.Debug("merge state", append([]zap.Field{zap.String("state", string(s))}, fields...)...)
}

func (m *run) fail(err error) error {
	m.log.Debug("merge aborted", zap.String("state", string(m.state)), zap.Error(err))
	return &MergeError{
		Strategy: m.req.Strategy,
		Source:   m.req.Source,
		Target:   m.req.Target,
		State:    m.state,
		Err:      err,
	}
}

// Merge lands req.Source on req.Target. The target ref is moved with a
// compare-and-swap against the head observed at the start, so a concurrent
// writer makes this call fail with an error matching both ErrMergeFailed
// and repo.ErrRefUpdateConflict. Every failure leaves the ref untouched and
// the whole call can be retried.
func (e *Engine) Merge(ctx context.Context, req Request) (*Result, error) {
	opID := e.newID()
	m := &run{
		e:     e,
		req:   req,
		state: StateStart,
		log: e.logger.With(
			zap.String("operation_id", opID),
			zap.String("project", e.project),
			zap.String("strategy", string(req.Strategy)),
			zap.String("source", req.Source),
			zap.String("target", req.Target),
		),
	}
	m.advance(StateStart)

	if err := ctx.Err(); err != nil {
		return nil, m.fail(err)
	}
	if !req.Strategy.valid() {
		return nil, m.fail(fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Strategy))
	}
	var err error
	if m.sourceHead, err = e.branchHead(req.Source); err != nil {
		return nil, m.fail(fmt.Errorf("source: %w", err))
	}
	if m.targetHead, err = e.branchHead(req.Target); err != nil {
		return nil, m.fail(fmt.Errorf("target: %w", err))
	}

	res := &Result{Strategy: req.Strategy, PreviousHead: m.targetHead, OperationID: opID}

	merged, err := e.repo.IsAncestor(m.sourceHead, m.targetHead)
	if err != nil {
		return nil, m.fail(err)
	}
	if merged {
		res.CommitID = m.targetHead
		res.AlreadyMerged = true
		m.advance(StateDone, zap.Bool("already_merged", true))
		m.log.Info("merge skipped, source already merged", zap.String("head", string(m.targetHead)))
		return res, nil
	}

	m.committer = e.signature(req.Committer)

	switch req.Strategy {
	case StrategyMerge:
		err = m.mergeCommit(res)
	case StrategySquash:
		err = m.squash(res)
	case StrategyRebase:
		err = m.rebase(res)
	}
	if err != nil {
		return nil, m.fail(err)
	}
	m.advance(StateApplied, zap.String("commit", string(res.CommitID)))

	if e.beforeRefUpdate != nil {
		e.beforeRefUpdate()
	}
	if err := ctx.Err(); err != nil {
		return nil, m.fail(err)
	}
	err = e.repo.WriteRef("refs/heads/"+req.Target, res.CommitID, repo.RefUpdate{
		Expected:  m.targetHead,
		Reason:    fmt.Sprintf("merge (%s): %s", req.Strategy, req.Source),
		Committer: m.committer,
	})
	if err != nil {
		var reflogErr *repo.RefUpdateReflogError
		if !errors.As(err, &reflogErr) {
			return nil, m.fail(err)
		}
		m.log.Warn("reflog append failed after ref update", zap.Error(err))
	}
	m.advance(StateRefUpdated)

	e.record(ctx, m, res)
	m.advance(StateDone)
	m.log.Info("merge completed",
		zap.String("commit", string(res.CommitID)),
		zap.String("previous_head", string(res.PreviousHead)),
		zap.Int("replayed", len(res.Replayed)),
	)
	return res, nil
}

func (m *run) mergeCommit(res *Result) error {
	base, found, err := m.e.repo.FindMergeBase(m.targetHead, m.sourceHead)
	if err != nil {
		return err
	}
	if !found {
		return repo.ErrNoCommonAncestor
	}
	res.Base = base
	m.advance(StateBaseFound, zap.String("base", string(base)))

	message := m.req.Message
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("Merge branch '%s' into %s", m.req.Source, m.req.Target)
	}
	out, err := m.e.repo.Merge(repo.MergeOptions{
		Ours:      m.targetHead,
		Theirs:    m.sourceHead,
		Message:   message,
		Author:    m.req.Author,
		Committer: m.committer,
	})
	if err != nil {
		return err
	}
	res.CommitID = out.Commit
	return nil
}

func (m *run) squash(res *Result) error {
	// A squash needs no base; it is looked up for the log and the result.
	base, found, err := m.e.repo.FindMergeBase(m.targetHead, m.sourceHead)
	if err != nil {
		return err
	}
	if found {
		res.Base = base
	}
	m.advance(StateBaseFound, zap.String("base", string(base)))

	source, err := m.e.repo.Store.ReadCommit(m.sourceHead)
	if err != nil {
		return fmt.Errorf("read source head: %w", err)
	}
	author := m.req.Author
	if author.Name == "" && author.Email == "" {
		author = m.committer
	}
	message := m.req.Message
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("Squash merge branch '%s' into %s\n", m.req.Source, m.req.Target)
	}
	commit, err := m.e.repo.Store.WriteCommit(&object.CommitObj{
		TreeHash:  source.TreeHash,
		Parents:   []object.Hash{m.targetHead},
		Author:    m.e.signature(author),
		Committer: m.committer,
		Message:   terminated(message),
	})
	if err != nil {
		return fmt.Errorf("write squash commit: %w", err)
	}
	res.CommitID = commit
	return nil
}

func (m *run) rebase(res *Result) error {
	base, found, err := m.e.repo.FindMergeBase(m.targetHead, m.sourceHead)
	if err != nil {
		return err
	}
	if !found {
		return repo.ErrNoCommonAncestor
	}
	res.Base = base
	m.advance(StateBaseFound, zap.String("base", string(base)))

	commits, err := m.e.repo.FirstParentRange(base, m.sourceHead)
	if err != nil {
		return err
	}

	cursor := m.targetHead
	for _, h := range commits {
		orig, err := m.e.repo.Store.ReadCommit(h)
		if err != nil {
			return fmt.Errorf("read %s: %w", h.Short(), err)
		}
		next, err := m.e.repo.Store.WriteCommit(&object.CommitObj{
			TreeHash:  orig.TreeHash,
			Parents:   []object.Hash{cursor},
			Author:    orig.Author,
			Committer: m.committer,
			Message:   orig.Message,
		})
		if err != nil {
			return fmt.Errorf("replay %s: %w", h.Short(), err)
		}
		m.log.Debug("replayed commit", zap.String("original", string(h)), zap.String("commit", string(next)))
		res.Replayed = append(res.Replayed, next)
		cursor = next
	}
	res.CommitID = cursor
	return nil
}

func (e *Engine) record(ctx context.Context, m *run, res *Result) {
	if e.recorder == nil {
		return
	}
	rec := Record{
		OperationID:  res.OperationID,
		Project:      e.project,
		Source:       m.req.Source,
		Target:       m.req.Target,
		Strategy:     res.Strategy,
		Commit:       res.CommitID,
		PreviousHead: res.PreviousHead,
		Replayed:     len(res.Replayed),
		At:           e.now(),
	}
	if err := e.recorder.Record(ctx, rec); err != nil {
		m.log.Warn("merge recorder failed", zap.Error(err))
	}
}

func (e *Engine) branchHead(name string) (object.Hash, error) {
	if err := repo.ValidateBranchName(name); err != nil {
		return "", err
	}
	return e.repo.ResolveRef("refs/heads/" + name)
}

func (e *Engine) signature(sig object.Signature) object.Signature {
	if sig.Name == "" && sig.Email == "" {
		sig.Name, sig.Email = e.repo.Identity.Name, e.repo.Identity.Email
	}
	if sig.When.IsZero() {
		sig.When = e.now()
	}
	return sig
}

func terminated(msg string) string {
	if strings.HasSuffix(msg, "\n") {
		return msg
	}
	return msg + "\n"
}
