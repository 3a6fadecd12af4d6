package diff

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/forgevcs/pkg/object"
)

func newStore(t *testing.T) *object.Store {
	t.Helper()
	return object.NewStore(filepath.Join(t.TempDir(), "repo.git"))
}

// writeTree stores files (slash paths to contents) as nested trees and
// returns the root tree id.
func writeTree(t *testing.T, s *object.Store, files map[string]string) object.Hash {
	t.Helper()

	dirs := map[string]map[string]string{}
	var entries []object.TreeEntry
	for p, content := range files {
		head, rest, nested := strings.Cut(p, "/")
		if nested {
			if dirs[head] == nil {
				dirs[head] = map[string]string{}
			}
			dirs[head][rest] = content
			continue
		}
		h, err := s.WriteBlob(&object.Blob{Data: []byte(content)})
		if err != nil {
			t.Fatalf("WriteBlob(%s): %v", p, err)
		}
		entries = append(entries, object.TreeEntry{Name: p, Mode: object.TreeModeFile, Hash: h})
	}

	names := make([]string, 0, len(dirs))
	for name := range dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entries = append(entries, object.TreeEntry{Name: name, Mode: object.TreeModeDir, Hash: writeTree(t, s, dirs[name])})
	}

	h, err := s.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	return h
}

func writeCommit(t *testing.T, s *object.Store, tree object.Hash, parents ...object.Hash) object.Hash {
	t.Helper()
	sig := object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0).UTC()}
	h, err := s.WriteCommit(&object.CommitObj{TreeHash: tree, Parents: parents, Author: sig, Committer: sig, Message: "test\n"})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	return h
}

func blobID(content string) object.Hash {
	return object.HashObject(object.TypeBlob, []byte(content))
}
