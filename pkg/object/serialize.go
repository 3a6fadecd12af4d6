package object

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// SortTreeEntries orders entries the way git does: byte-wise by name, with
// subtree names compared as if they ended in "/".
func SortTreeEntries(entries []TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})
}

func treeSortKey(e TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// MarshalTree serializes a TreeObj in git's binary tree format. Each entry is
//
//	<mode> SP <name> NUL <20-byte binary id>
//
// Entries are written in git order regardless of the input order so the same
// directory always hashes to the same id.
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	SortTreeEntries(sorted)

	// A file and a subtree with the same name sort apart, so duplicates are
	// tracked by name rather than by neighbour.
	seen := make(map[string]struct{}, len(sorted))
	var buf bytes.Buffer
	for _, e := range sorted {
		if e.Name == "" || e.Name == "." || e.Name == ".." || strings.ContainsAny(e.Name, "/\x00") {
			return nil, fmt.Errorf("marshal tree: invalid entry name %q", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("marshal tree: duplicate entry %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		if err := validateMode(e.Mode); err != nil {
			return nil, fmt.Errorf("marshal tree: entry %q: %w", e.Name, err)
		}
		raw, err := hex.DecodeString(string(e.Hash))
		if err != nil || len(raw) != HashSize/2 {
			return nil, fmt.Errorf("marshal tree: entry %q: bad id %q", e.Name, e.Hash)
		}
		buf.WriteString(e.Mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses a TreeObj from git's binary tree format.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("unmarshal tree: missing mode separator")
		}
		mode := normalizeMode(string(data[:sp]))
		data = data[sp+1:]

		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, fmt.Errorf("unmarshal tree: missing name terminator")
		}
		name := string(data[:nul])
		data = data[nul+1:]

		if len(data) < HashSize/2 {
			return nil, fmt.Errorf("unmarshal tree: truncated id for %q", name)
		}
		id := hex.EncodeToString(data[:HashSize/2])
		data = data[HashSize/2:]

		tr.Entries = append(tr.Entries, TreeEntry{Name: name, Mode: mode, Hash: Hash(id)})
	}
	return tr, nil
}

// normalizeMode maps legacy modes some old git versions wrote to their
// canonical spelling.
func normalizeMode(mode string) string {
	switch mode {
	case "040000":
		return TreeModeDir
	case "100664":
		return TreeModeFile
	}
	return mode
}

func validateMode(mode string) error {
	switch mode {
	case TreeModeDir, TreeModeFile, TreeModeExecutable, TreeModeSymlink, TreeModeGitlink:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// Signature
// ---------------------------------------------------------------------------

// MarshalSignature renders "Name <email> <unix seconds> <+hhmm>".
func MarshalSignature(s Signature) string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

// UnmarshalSignature parses the header value written by MarshalSignature.
// A missing or malformed timestamp yields the zero time rather than an error,
// matching how git tooling treats broken identities in old history.
func UnmarshalSignature(value string) (Signature, error) {
	open := strings.LastIndexByte(value, '<')
	closing := strings.LastIndexByte(value, '>')
	if open < 0 || closing < open {
		return Signature{}, fmt.Errorf("unmarshal signature: malformed identity %q", value)
	}
	sig := Signature{
		Name:  strings.TrimSpace(value[:open]),
		Email: value[open+1 : closing],
	}

	fields := strings.Fields(value[closing+1:])
	if len(fields) == 0 {
		return sig, nil
	}
	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return sig, nil
	}
	loc := time.UTC
	if len(fields) > 1 {
		if tz, err := parseTimezone(fields[1]); err == nil {
			loc = tz
		}
	}
	sig.When = time.Unix(secs, 0).In(loc)
	return sig, nil
}

func parseTimezone(tz string) (*time.Location, error) {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return nil, fmt.Errorf("bad timezone %q", tz)
	}
	hours, err := strconv.Atoi(tz[1:3])
	if err != nil {
		return nil, err
	}
	minutes, err := strconv.Atoi(tz[3:5])
	if err != nil {
		return nil, err
	}
	offset := hours*3600 + minutes*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone("", offset), nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj in git's commit format:
//
//	tree H
//	parent H     (zero or more)
//	author A
//	committer C
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", MarshalSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", MarshalSignature(c.Committer))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from git's commit format. Headers this
// engine never writes (gpgsig, encoding, mergetag) are skipped together with
// their continuation lines.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	header, message, ok := bytes.Cut(data, []byte("\n\n"))
	if !ok {
		// A commit with an empty message may end right after the headers.
		header = bytes.TrimSuffix(data, []byte("\n"))
		message = nil
	}

	c := &CommitObj{Message: string(message)}
	for _, line := range strings.Split(string(header), "\n") {
		if strings.HasPrefix(line, " ") {
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			sig, err := UnmarshalSignature(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: author: %w", err)
			}
			c.Author = sig
		case "committer":
			sig, err := UnmarshalSignature(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: committer: %w", err)
			}
			c.Committer = sig
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("unmarshal commit: missing tree header")
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Tag
// ---------------------------------------------------------------------------

// TagTarget extracts the "object" and "type" headers of an annotated tag so
// tag refs can be peeled to the commit they name.
func TagTarget(data []byte) (Hash, ObjectType, error) {
	header, _, _ := bytes.Cut(data, []byte("\n\n"))
	var (
		target Hash
		typ    ObjectType
	)
	for _, line := range strings.Split(string(header), "\n") {
		key, val, _ := strings.Cut(line, " ")
		switch key {
		case "object":
			target = Hash(val)
		case "type":
			typ = ObjectType(val)
		}
	}
	if target == "" {
		return "", "", fmt.Errorf("unmarshal tag: missing object header")
	}
	return target, typ, nil
}
