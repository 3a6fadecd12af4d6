package object

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Connectivity is the result of walking the object graph from a set of roots.
type Connectivity struct {
	Reachable map[Hash]struct{}
	// Missing lists referenced ids that are absent from the store, sorted.
	Missing []Hash
}

// Walk returns every object reachable from roots by following commit, tree
// and tag references, and the referenced ids the store does not hold.
// Gitlink entries are not followed.
func (s *Store) Walk(roots []Hash) (*Connectivity, error) {
	roots = uniqueNormalizedHashes(roots)
	out := &Connectivity{Reachable: make(map[Hash]struct{}, len(roots))}
	missing := make(map[Hash]struct{})

	stack := make([]Hash, 0, len(roots))
	stack = append(stack, roots...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" {
			continue
		}
		if _, ok := out.Reachable[h]; ok {
			continue
		}

		objType, data, err := s.Read(h)
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				missing[h] = struct{}{}
				continue
			}
			return nil, fmt.Errorf("walk read %s: %w", h, err)
		}
		out.Reachable[h] = struct{}{}

		refs, err := referencedHashes(objType, data)
		if err != nil {
			return nil, fmt.Errorf("walk parse %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}

	for h := range missing {
		out.Missing = append(out.Missing, h)
	}
	sort.Slice(out.Missing, func(i, j int) bool { return out.Missing[i] < out.Missing[j] })
	return out, nil
}

func referencedHashes(objType ObjectType, data []byte) ([]Hash, error) {
	switch objType {
	case TypeBlob:
		return nil, nil
	case TypeTag:
		target, _, err := TagTarget(data)
		if err != nil {
			return nil, err
		}
		return []Hash{target}, nil
	case TypeCommit:
		commit, err := UnmarshalCommit(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, 1+len(commit.Parents))
		refs = append(refs, commit.TreeHash)
		refs = append(refs, commit.Parents...)
		return refs, nil
	case TypeTree:
		tree, err := UnmarshalTree(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			if e.Type() == TypeCommit {
				continue
			}
			refs = append(refs, e.Hash)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unsupported object type %q", objType)
	}
}

func uniqueNormalizedHashes(in []Hash) []Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		h = Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
