package object

import "time"

// Hash is a 40-character lowercase hex-encoded SHA-1 object id, identical to
// the ids git itself computes for the same content.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

const (
	// Tree mode constants using git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
	TreeModeGitlink    = "160000"
)

// EmptyTreeHash is the id of the tree with no entries.
const EmptyTreeHash Hash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == TreeModeDir
}

// Type returns the kind of object the entry references. Gitlinks reference
// commits in another repository and are never read from this store.
func (e TreeEntry) Type() ObjectType {
	switch e.Mode {
	case TreeModeDir:
		return TypeTree
	case TreeModeGitlink:
		return TypeCommit
	default:
		return TypeBlob
	}
}

// TreeObj holds a list of tree entries kept in git order.
type TreeObj struct {
	Entries []TreeEntry
}

// Signature identifies who authored or committed a change and when.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    Signature
	Committer Signature
	Message   string
}

// FirstParent returns the commit's first parent, or "" for a root commit.
func (c *CommitObj) FirstParent() Hash {
	if c == nil || len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}
