package diff

import "github.com/odvcencio/forgevcs/pkg/object"

// Objects is the read access Compare needs.
type Objects interface {
	CommitTreeReader
	BlobReader
}

// FileDiff is one changed file together with its patch.
type FileDiff struct {
	Change
	Patch
}

// Summary totals a Result.
type Summary struct {
	TotalFiles     int `json:"totalFiles"`
	TotalAdditions int `json:"totalAdditions"`
	TotalDeletions int `json:"totalDeletions"`
}

// Result is the diff between two commits.
type Result struct {
	Files   []FileDiff `json:"files"`
	Summary Summary    `json:"summary"`
}

// Compare diffs commitA against commitB and renders a patch for every changed
// file. Only failures walking the trees are returned; a file whose blobs
// cannot be read gets an ErrorPatchText patch and the rest of the diff is
// still produced.
func Compare(objects Objects, commitA, commitB object.Hash) (*Result, error) {
	changes, err := DiffCommits(objects, commitA, commitB)
	if err != nil {
		return nil, err
	}

	res := &Result{Files: make([]FileDiff, 0, len(changes))}
	for _, c := range changes {
		p := GeneratePatch(objects, c.Path, c.OldHash, c.NewHash)
		res.Files = append(res.Files, FileDiff{Change: c, Patch: p})
		res.Summary.TotalAdditions += p.Additions
		res.Summary.TotalDeletions += p.Deletions
	}
	res.Summary.TotalFiles = len(res.Files)
	return res, nil
}

// Failed returns the files whose patch could not be generated.
func (r *Result) Failed() []FileDiff {
	var out []FileDiff
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}
