package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/odvcencio/forgevcs/pkg/object"
)

var (
	ErrRefNotFound       = errors.New("ref not found")
	ErrRefUpdateConflict = errors.New("ref update conflict")
	ErrInvalidRefName    = errors.New("invalid ref name")

	// ErrRefCASMismatch is the historical name of ErrRefUpdateConflict.
	ErrRefCASMismatch = ErrRefUpdateConflict

	// ErrRefLocked reports a ref whose lock file outlived the wait limit, either
	// held by a slow writer or left behind by a crashed one. It matches
	// ErrRefUpdateConflict so callers retry or surface it like a lost race.
	ErrRefLocked = fmt.Errorf("%w: ref locked", ErrRefUpdateConflict)

	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// RefUpdateReflogError indicates the ref file update succeeded, but appending
// the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

var (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

const (
	maxSymrefDepth = 5
)

// RefUpdate controls how WriteRef moves a ref.
type RefUpdate struct {
	// Force skips the expected-value check. The write is still atomic.
	Force bool
	// Expected is the value the ref must currently hold; "" means the ref
	// must not exist yet. Ignored when Force is set.
	Expected object.Hash
	// Reason is recorded in the reflog.
	Reason string
	// Committer is recorded in the reflog; defaults to the repo identity.
	Committer object.Signature
}

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. "HEAD": read HEAD and follow it if symbolic.
//  2. Names starting with "refs/": read that ref.
//  3. Otherwise "refs/heads/<name>", then "refs/tags/<name>".
//  4. A full hex object id present in the store resolves to itself.
//
// Loose refs take precedence over packed-refs. Annotated tags are peeled to
// the object they point at. Undefined names return ErrRefNotFound.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("resolve ref: empty name: %w", ErrRefNotFound)
	}
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.resolveFull(head, 0)
		}
		h, err := object.ParseHash(head)
		if err != nil {
			return "", fmt.Errorf("resolve ref HEAD: %w", err)
		}
		return h, nil
	}
	if strings.HasPrefix(name, "refs/") {
		return r.resolveFull(name, 0)
	}

	for _, full := range []string{"refs/heads/" + name, "refs/tags/" + name} {
		if validateRefName(full) != nil {
			continue
		}
		h, err := r.resolveFull(full, 0)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrRefNotFound) {
			return "", err
		}
	}
	if h, err := object.ParseHash(name); err == nil && r.Store.Has(h) {
		return h, nil
	}
	return "", fmt.Errorf("resolve ref %q: %w", name, ErrRefNotFound)
}

func (r *Repo) resolveFull(name string, depth int) (object.Hash, error) {
	if depth > maxSymrefDepth {
		return "", fmt.Errorf("resolve ref %q: symbolic ref chain too deep", name)
	}
	if err := validateRefName(name); err != nil {
		return "", fmt.Errorf("resolve ref: %w", err)
	}

	value, found, err := r.readRef(name)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	if !found {
		return "", fmt.Errorf("resolve ref %q: %w", name, ErrRefNotFound)
	}
	if target, ok := strings.CutPrefix(value, "ref: "); ok {
		return r.resolveFull(strings.TrimSpace(target), depth+1)
	}
	h, err := object.ParseHash(value)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	if strings.HasPrefix(name, "refs/tags/") {
		return r.peelTag(h)
	}
	return h, nil
}

// peelTag follows annotated tag objects until it reaches a non-tag object.
// Lightweight tags and unreadable targets are returned unchanged.
func (r *Repo) peelTag(h object.Hash) (object.Hash, error) {
	for i := 0; i <= maxSymrefDepth; i++ {
		typ, data, err := r.Store.Read(h)
		if err != nil || typ != object.TypeTag {
			return h, nil
		}
		target, _, err := object.TagTarget(data)
		if err != nil {
			return "", fmt.Errorf("peel tag %s: %w", h, err)
		}
		h = target
	}
	return "", fmt.Errorf("peel tag %s: tag chain too deep", h)
}

// readRef returns the raw value of a ref: a loose ref file if one exists,
// otherwise the packed-refs entry.
func (r *Repo) readRef(name string) (string, bool, error) {
	data, err := os.ReadFile(r.refPath(name))
	if err == nil {
		return strings.TrimSpace(string(data)), true, nil
	}
	if !os.IsNotExist(err) && !isDirErr(r.refPath(name)) {
		return "", false, err
	}
	return r.readPackedRef(name)
}

func (r *Repo) readPackedRef(name string) (string, bool, error) {
	if _, err := os.Stat(filepath.Join(r.Root, "packed-refs")); err != nil {
		return "", false, nil
	}
	ref, err := r.refStorage().Reference(plumbing.ReferenceName(name))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("packed refs: %w", err)
	}
	if ref.Type() == plumbing.SymbolicReference {
		return "ref: " + ref.Target().String(), true, nil
	}
	return ref.Hash().String(), true, nil
}

func isDirErr(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (r *Repo) refPath(name string) string {
	return filepath.Join(r.Root, filepath.FromSlash(name))
}

// WriteRef moves the named ref to h. Without Force it is a compare-and-swap
// against u.Expected and fails with ErrRefUpdateConflict when the ref holds
// any other value. The target object must exist in the store.
func (r *Repo) WriteRef(name string, h object.Hash, u RefUpdate) error {
	if u.Force {
		return r.updateRef(name, h, nil, u)
	}
	expected := u.Expected
	return r.updateRef(name, h, &expected, u)
}

// UpdateRef unconditionally writes h to the named ref.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.updateRef(name, h, nil, RefUpdate{Reason: "update"})
}

// UpdateRefCAS writes h to the named ref using lockfile + rename atomic
// semantics. If expectedOld is provided, the update only succeeds when the
// current ref hash matches it ("" meaning the ref must not exist).
//
// Reflog append happens after the ref rename; if reflog append fails, the ref
// update remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	if len(expectedOld) == 0 {
		return r.updateRef(name, h, nil, RefUpdate{Reason: "update"})
	}
	return r.updateRef(name, h, &expectedOld[0], RefUpdate{Reason: "update"})
}

func (r *Repo) updateRef(name string, h object.Hash, expected *object.Hash, u RefUpdate) error {
	name, err := r.writableRefName(name)
	if err != nil {
		return err
	}
	h, err = object.ParseHash(string(h))
	if err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	if !r.Store.Has(h) {
		return fmt.Errorf("update ref %q: target %s: %w", name, h, object.ErrObjectNotFound)
	}

	refPath := r.refPath(name)
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := r.currentHash(name)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if expected != nil && oldHash != *expected {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name,
			ErrRefUpdateConflict,
			displayHash(*expected),
			displayHash(oldHash),
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	reason := u.Reason
	if reason == "" {
		reason = "update"
	}
	if err := r.appendReflog(name, oldHash, h, r.signature(u.Committer), reason); err != nil {
		return &RefUpdateReflogError{
			Ref:     name,
			OldHash: oldHash,
			NewHash: h,
			Err:     err,
		}
	}
	return nil
}

// DeleteRef removes a ref. A non-empty expected value is compared first and
// a mismatch yields ErrRefUpdateConflict. Deleting a missing ref returns
// ErrRefNotFound. The ref's reflog is removed with it.
func (r *Repo) DeleteRef(name string, expected object.Hash) error {
	name, err := r.writableRefName(name)
	if err != nil {
		return err
	}
	if name == "HEAD" {
		return fmt.Errorf("delete ref: %w: HEAD cannot be deleted", ErrInvalidRefName)
	}

	refPath := r.refPath(name)
	lockPath := refPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("delete ref %q: mkdir: %w", name, err)
	}
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("delete ref %q: lock: %w", name, err)
	}
	defer func() {
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
	}()

	oldHash, err := r.currentHash(name)
	if err != nil {
		return fmt.Errorf("delete ref %q: read old hash: %w", name, err)
	}
	if oldHash == "" {
		return fmt.Errorf("delete ref %q: %w", name, ErrRefNotFound)
	}
	if expected != "" && oldHash != expected {
		return fmt.Errorf("delete ref %q: %w (expected %s, found %s)", name, ErrRefUpdateConflict, expected, oldHash)
	}

	if err := os.Remove(refPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	if _, found, err := r.readPackedRef(name); err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	} else if found {
		if err := r.refStorage().RemoveReference(plumbing.ReferenceName(name)); err != nil {
			return fmt.Errorf("delete ref %q: packed refs: %w", name, err)
		}
	}
	_ = os.Remove(r.reflogPath(name))
	return nil
}

// writableRefName validates name and maps a symbolic HEAD to its target.
func (r *Repo) writableRefName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			name = head
		}
	}
	if err := validateRefName(name); err != nil {
		return "", fmt.Errorf("update ref: %w", err)
	}
	return name, nil
}

// currentHash returns the ref's current direct value, "" if it is unset.
func (r *Repo) currentHash(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		return object.Hash(head), nil
	}
	value, found, err := r.readRef(name)
	if err != nil || !found {
		return "", err
	}
	if strings.HasPrefix(value, "ref: ") {
		return "", fmt.Errorf("%q is a symbolic ref", name)
	}
	return object.Hash(value), nil
}

// ListRefs lists references under refs/, loose and packed. Names are returned
// relative to the refs root, e.g. "heads/main", "tags/v1". An optional prefix
// such as "heads" restricts the listing.
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	root := filepath.Join(r.Root, "refs")
	dir := root
	if prefix != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		value := strings.TrimSpace(string(data))
		if strings.HasPrefix(value, "ref: ") {
			return nil
		}
		refs[filepath.ToSlash(rel)] = object.Hash(value)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list refs: %w", err)
	}

	if err := r.addPackedRefs(refs, prefix); err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

func (r *Repo) addPackedRefs(refs map[string]object.Hash, prefix string) error {
	if _, err := os.Stat(filepath.Join(r.Root, "packed-refs")); err != nil {
		return nil
	}
	iter, err := r.refStorage().IterReferences()
	if err != nil {
		return err
	}
	defer iter.Close()
	return iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		full := ref.Name().String()
		rel, ok := strings.CutPrefix(full, "refs/")
		if !ok || strings.HasSuffix(rel, ".lock") {
			return nil
		}
		if prefix != "" && rel != prefix && !strings.HasPrefix(rel, prefix+"/") {
			return nil
		}
		if _, loose := refs[rel]; !loose {
			refs[rel] = object.Hash(ref.Hash().String())
		}
		return nil
	})
}

// SortedRefNames returns the keys of refs in lexical order.
func SortedRefNames(refs map[string]object.Hash) []string {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%w: %s held for over %s (remove it if no writer is running)", ErrRefLocked, lockPath, refLockWaitLimit)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func displayHash(h object.Hash) string {
	if h == "" {
		return "<none>"
	}
	return string(h)
}

// validateRefName enforces git's ref naming rules for full ref names.
func validateRefName(name string) error {
	if name == "HEAD" {
		return nil
	}
	if !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("%w: %q must start with refs/", ErrInvalidRefName, name)
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") ||
		strings.Contains(name, "..") || strings.Contains(name, "@{") || strings.Contains(name, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidRefName, name)
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f || strings.ContainsRune(" ~^:?*[\\", c) {
			return fmt.Errorf("%w: %q", ErrInvalidRefName, name)
		}
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || strings.HasPrefix(part, ".") || strings.HasSuffix(part, ".lock") {
			return fmt.Errorf("%w: %q", ErrInvalidRefName, name)
		}
	}
	return nil
}
