package diff

import (
	"fmt"
	"strings"
)

const statBarWidth = 40

// FormatStat renders a git-style diffstat for r.
//
// Output format:
//
//	path/to/file.go | 12 ++++++++----
//	img.png         | Bin
//	2 files changed, 8 insertions(+), 4 deletions(-)
func FormatStat(r *Result) string {
	if r == nil || len(r.Files) == 0 {
		return ""
	}

	nameWidth, maxChanges := 0, 0
	for _, f := range r.Files {
		nameWidth = max(nameWidth, len(f.Path))
		maxChanges = max(maxChanges, f.Additions+f.Deletions)
	}
	countWidth := len(fmt.Sprint(maxChanges))

	var b strings.Builder
	for _, f := range r.Files {
		fmt.Fprintf(&b, " %-*s | ", nameWidth, f.Path)
		switch {
		case f.Binary:
			b.WriteString("Bin")
		case f.Err != nil:
			b.WriteString("?")
		default:
			plus, minus := scaleBar(f.Additions, f.Deletions, maxChanges)
			fmt.Fprintf(&b, "%*d %s%s", countWidth, f.Additions+f.Deletions,
				strings.Repeat("+", plus), strings.Repeat("-", minus))
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, " %d file%s changed", r.Summary.TotalFiles, plural(r.Summary.TotalFiles))
	if r.Summary.TotalAdditions > 0 {
		fmt.Fprintf(&b, ", %d insertion%s(+)", r.Summary.TotalAdditions, plural(r.Summary.TotalAdditions))
	}
	if r.Summary.TotalDeletions > 0 {
		fmt.Fprintf(&b, ", %d deletion%s(-)", r.Summary.TotalDeletions, plural(r.Summary.TotalDeletions))
	}
	b.WriteByte('\n')
	return b.String()
}

// scaleBar shrinks the +/- bar so the largest file fits statBarWidth.
func scaleBar(additions, deletions, maxChanges int) (int, int) {
	if maxChanges <= statBarWidth {
		return additions, deletions
	}
	plus := additions * statBarWidth / maxChanges
	minus := deletions * statBarWidth / maxChanges
	if additions > 0 && plus == 0 {
		plus = 1
	}
	if deletions > 0 && minus == 0 {
		minus = 1
	}
	return plus, minus
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
