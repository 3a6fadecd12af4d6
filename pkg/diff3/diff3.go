// Package diff3 implements a line-level three-way merge.
package diff3

import (
	"bytes"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkUnchanged HunkType = iota // Base, ours and theirs agree.
	HunkOurs                      // Only ours changed the region.
	HunkTheirs                    // Only theirs changed the region.
	HunkSame                      // Both sides made the identical change.
	HunkConflict                  // Both sides changed the region differently.
)

func (t HunkType) String() string {
	switch t {
	case HunkUnchanged:
		return "unchanged"
	case HunkOurs:
		return "ours"
	case HunkTheirs:
		return "theirs"
	case HunkSame:
		return "same"
	case HunkConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Hunk represents a contiguous section of the merge output.
type Hunk struct {
	Type               HunkType
	Base, Ours, Theirs []byte
}

// Result holds the outcome of a three-way merge.
type Result struct {
	Merged       []byte // Full merged content, with conflict markers if conflicts exist.
	HasConflicts bool
	Conflicts    int    // Number of conflict hunks.
	Hunks        []Hunk // Individual hunks in document order.
}

// Markers used when rendering conflicts into Merged.
const (
	MarkerOurs   = "<<<<<<< ours"
	MarkerBase   = "======="
	MarkerTheirs = ">>>>>>> theirs"
)

// Merge performs a three-way merge of base, ours, and theirs.
//
// Regions where all three inputs agree are found by intersecting the
// matching blocks of base→ours and base→theirs. Between two such regions
// a side that still equals base yields to the other side; two different
// changes produce a conflict.
func Merge(base, ours, theirs []byte) Result {
	b := SplitLines(base)
	o := SplitLines(ours)
	t := SplitLines(theirs)

	var res Result
	var out bytes.Buffer

	iz, io, it := 0, 0, 0
	for _, s := range syncRegions(b, o, t) {
		baseGap := b[iz:s.base]
		oursGap := o[io:s.ours]
		theirsGap := t[it:s.theirs]

		if len(oursGap) > 0 || len(theirsGap) > 0 {
			oursKept := equalLines(oursGap, baseGap)
			theirsKept := equalLines(theirsGap, baseGap)
			h := Hunk{Base: join(baseGap), Ours: join(oursGap), Theirs: join(theirsGap)}
			switch {
			case equalLines(oursGap, theirsGap):
				h.Type = HunkSame
				writeLines(&out, oursGap)
			case theirsKept:
				h.Type = HunkOurs
				writeLines(&out, oursGap)
			case oursKept:
				h.Type = HunkTheirs
				writeLines(&out, theirsGap)
			default:
				h.Type = HunkConflict
				res.Conflicts++
				writeConflict(&out, oursGap, theirsGap)
			}
			res.Hunks = append(res.Hunks, h)
		}

		if s.size > 0 {
			same := o[s.ours : s.ours+s.size]
			writeLines(&out, same)
			res.Hunks = append(res.Hunks, Hunk{
				Type:   HunkUnchanged,
				Base:   join(same),
				Ours:   join(same),
				Theirs: join(same),
			})
		}
		iz, io, it = s.base+s.size, s.ours+s.size, s.theirs+s.size
	}

	res.Merged = out.Bytes()
	res.HasConflicts = res.Conflicts > 0
	return res
}

// SplitLines splits data into lines that keep their terminating newline, so
// joining the result reproduces data exactly. A final line without a newline
// is kept as is.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// syncRegion is a run of size lines identical in all three inputs, starting
// at the given offsets.
type syncRegion struct {
	base, ours, theirs int
	size               int
}

func syncRegions(base, ours, theirs []string) []syncRegion {
	om := matchingBlocks(base, ours)
	tm := matchingBlocks(base, theirs)

	var out []syncRegion
	i, j := 0, 0
	for i < len(om) && j < len(tm) {
		a, b := om[i], tm[j]
		lo := max(a.A, b.A)
		hi := min(a.A+a.Size, b.A+b.Size)
		if lo < hi {
			out = append(out, syncRegion{
				base:   lo,
				ours:   a.B + (lo - a.A),
				theirs: b.B + (lo - b.A),
				size:   hi - lo,
			})
		}
		if a.A+a.Size < b.A+b.Size {
			i++
		} else {
			j++
		}
	}
	// Sentinel so the trailing gap is processed.
	out = append(out, syncRegion{base: len(base), ours: len(ours), theirs: len(theirs)})
	return out
}

func matchingBlocks(a, b []string) []difflib.Match {
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	blocks := m.GetMatchingBlocks()
	// Drop difflib's zero-length terminator.
	if n := len(blocks); n > 0 && blocks[n-1].Size == 0 {
		blocks = blocks[:n-1]
	}
	return blocks
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func join(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, ""))
}

func writeLines(buf *bytes.Buffer, lines []string) {
	for _, l := range lines {
		buf.WriteString(l)
	}
}

func writeConflict(buf *bytes.Buffer, ours, theirs []string) {
	buf.WriteString(MarkerOurs + "\n")
	writeTerminated(buf, ours)
	buf.WriteString(MarkerBase + "\n")
	writeTerminated(buf, theirs)
	buf.WriteString(MarkerTheirs + "\n")
}

// writeTerminated writes lines and makes sure the last one ends in a newline
// so the following marker starts on its own line.
func writeTerminated(buf *bytes.Buffer, lines []string) {
	writeLines(buf, lines)
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		buf.WriteByte('\n')
	}
}
