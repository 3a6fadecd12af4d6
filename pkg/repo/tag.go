package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/forgevcs/pkg/object"
)

var ErrTagExists = errors.New("tag already exists")

// CreateTag creates or, with force, moves a lightweight tag under refs/tags/.
func (r *Repo) CreateTag(name string, target object.Hash, force bool) error {
	refName, err := tagRefName(name)
	if err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	if err := r.WriteRef(refName, target, RefUpdate{Force: force, Reason: "tag: " + name}); err != nil {
		if errors.Is(err, ErrRefUpdateConflict) && !errors.Is(err, ErrRefLocked) {
			return fmt.Errorf("create tag %q: %w", name, ErrTagExists)
		}
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// CreateAnnotatedTag stores a git tag object pointing at target and points
// refs/tags/<name> at it. The tag object's id is returned.
func (r *Repo) CreateAnnotatedTag(name string, target object.Hash, tagger object.Signature, message string, force bool) (object.Hash, error) {
	refName, err := tagRefName(name)
	if err != nil {
		return "", fmt.Errorf("create annotated tag: %w", err)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("create annotated tag: message is required")
	}

	targetType, _, err := r.Store.Read(target)
	if err != nil {
		return "", fmt.Errorf("create annotated tag: read target %s: %w", target, err)
	}

	payload := fmt.Sprintf("object %s\ntype %s\ntag %s\ntagger %s\n\n%s\n",
		target, targetType, name, object.MarshalSignature(r.signature(tagger)), message)
	tagHash, err := r.Store.Write(object.TypeTag, []byte(payload))
	if err != nil {
		return "", fmt.Errorf("create annotated tag: write tag object: %w", err)
	}

	if err := r.WriteRef(refName, tagHash, RefUpdate{Force: force, Reason: "tag: " + name, Committer: tagger}); err != nil {
		if errors.Is(err, ErrRefUpdateConflict) && !errors.Is(err, ErrRefLocked) {
			return "", fmt.Errorf("create annotated tag %q: %w", name, ErrTagExists)
		}
		return "", fmt.Errorf("create annotated tag: %w", err)
	}
	return tagHash, nil
}

// DeleteTag removes refs/tags/<name>.
func (r *Repo) DeleteTag(name string) error {
	refName, err := tagRefName(name)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if err := r.DeleteRef(refName, ""); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// ListTags returns tag name -> peeled target, i.e. annotated tags map to the
// object they name rather than the tag object.
func (r *Repo) ListTags() (map[string]object.Hash, error) {
	refs, err := r.ListRefs("tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	out := make(map[string]object.Hash, len(refs))
	for full, h := range refs {
		peeled, err := r.peelTag(h)
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		out[strings.TrimPrefix(full, "tags/")] = peeled
	}
	return out, nil
}

func tagRefName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: tag name is required", ErrInvalidRefName)
	}
	refName := "refs/tags/" + name
	if err := validateRefName(refName); err != nil {
		return "", err
	}
	return refName, nil
}
