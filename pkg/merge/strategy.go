package merge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStrategy is returned for a strategy name outside merge, squash
// and rebase.
var ErrUnknownStrategy = errors.New("unknown merge strategy")

// Strategy selects how source history lands on the target branch.
type Strategy string

const (
	// StrategyMerge writes a merge commit with parents [target, source].
	StrategyMerge Strategy = "merge"
	// StrategySquash writes one commit holding the source tree on top of
	// the target head.
	StrategySquash Strategy = "squash"
	// StrategyRebase replays the source commits after the merge base onto
	// the target head.
	StrategyRebase Strategy = "rebase"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{StrategyMerge, StrategySquash, StrategyRebase}

// ParseStrategy maps a user supplied name to a Strategy. "merge-commit" is
// accepted as an alias of merge.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "merge", "merge-commit":
		return StrategyMerge, nil
	case "squash":
		return StrategySquash, nil
	case "rebase":
		return StrategyRebase, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

func (s Strategy) valid() bool {
	switch s {
	case StrategyMerge, StrategySquash, StrategyRebase:
		return true
	}
	return false
}

// State is a step of a single merge invocation:
//
//	start -> base-found -> applied -> ref-updated -> done
//
// An already merged source jumps from start straight to done.
type State string

const (
	StateStart      State = "start"
	StateBaseFound  State = "base-found"
	StateApplied    State = "applied"
	StateRefUpdated State = "ref-updated"
	StateDone       State = "done"
)
