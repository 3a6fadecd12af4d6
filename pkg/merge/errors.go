package merge

import (
	"errors"
	"fmt"
)

// ErrMergeFailed matches every error returned by Engine.Merge.
var ErrMergeFailed = errors.New("merge failed")

// MergeError describes a failed merge. State is the last state the merge
// reached; the target ref is never moved by a failed merge.
type MergeError struct {
	Strategy Strategy
	Source   string
	Target   string
	State    State
	Err      error
}

func (e *MergeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s %s into %s (at %s): %v", ErrMergeFailed, e.Strategy, e.Source, e.Target, e.State, e.Err)
}

func (e *MergeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *MergeError) Is(target error) bool {
	return target == ErrMergeFailed
}
