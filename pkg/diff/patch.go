package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/odvcencio/forgevcs/pkg/object"
	"github.com/pmezard/go-difflib/difflib"
)

// Sentinel patch texts.
const (
	BinaryPatchText = "Binary file"
	ErrorPatchText  = "Error generating diff"
)

// ContextLines is the number of unchanged lines around each hunk.
const ContextLines = 3

// noNewlineMarker follows a rendered line that has no newline in the file.
const noNewlineMarker = "\\ No newline at end of file\n"

// Patch is the rendered difference between two versions of a file.
type Patch struct {
	Text      string `json:"patch"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Binary    bool   `json:"binary,omitempty"`
	// Err is the read failure behind an ErrorPatchText patch.
	Err error `json:"-"`
}

// BlobReader reads blob objects.
type BlobReader interface {
	ReadBlob(h object.Hash) (*object.Blob, error)
}

// GeneratePatch renders a unified diff between the blobs oldHash and newHash
// for the file at path. Either hash may be empty for an added or deleted
// file. It never fails: unreadable blobs yield ErrorPatchText and content
// containing a NUL byte yields BinaryPatchText, both with zero counts.
func GeneratePatch(objects BlobReader, path string, oldHash, newHash object.Hash) Patch {
	oldData, err := readSide(objects, oldHash)
	if err != nil {
		return Patch{Text: ErrorPatchText, Err: err}
	}
	newData, err := readSide(objects, newHash)
	if err != nil {
		return Patch{Text: ErrorPatchText, Err: err}
	}
	return PatchBytes(path, oldData, newData, oldHash == "", newHash == "")
}

// PatchBytes renders a unified diff between two in-memory versions of a file.
// oldMissing and newMissing select /dev/null for the corresponding header.
func PatchBytes(path string, oldData, newData []byte, oldMissing, newMissing bool) Patch {
	if isBinary(oldData) || isBinary(newData) {
		return Patch{Text: BinaryPatchText, Binary: true}
	}

	from, to := "a/"+path, "b/"+path
	if oldMissing {
		from = "/dev/null"
	}
	if newMissing {
		to = "/dev/null"
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(oldData),
		B:        splitLines(newData),
		FromFile: from,
		ToFile:   to,
		Context:  ContextLines,
	})
	if err != nil {
		return Patch{Text: ErrorPatchText, Err: err}
	}

	p := Patch{Text: text}
	p.Additions, p.Deletions = countChanges(text)
	return p
}

func readSide(objects BlobReader, h object.Hash) ([]byte, error) {
	if h == "" {
		return nil, nil
	}
	b, err := objects.ReadBlob(h)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	return b.Data, nil
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

// splitLines splits data into newline-terminated lines. A final line without
// a newline carries git's "\ No newline at end of file" marker, so it never
// compares equal to the same text with a newline and renders like git.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if last := lines[len(lines)-1]; !strings.HasSuffix(last, "\n") {
		lines[len(lines)-1] = last + "\n" + noNewlineMarker
	}
	return lines
}

// countChanges counts body lines starting with '+' or '-'. The first two
// lines are the ---/+++ file headers.
func countChanges(text string) (additions, deletions int) {
	if text == "" {
		return 0, 0
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(lines) > 2 {
		lines = lines[2:]
	} else {
		lines = nil
	}
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "+"):
			additions++
		case strings.HasPrefix(l, "-"):
			deletions++
		}
	}
	return additions, deletions
}
