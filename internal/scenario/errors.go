package scenario

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks, mirroring the teacher's categorized
// error types (internal/graph/errors.go) but for the scenario text grammar.
var (
	ErrSyntax      = errors.New("scenario syntax error")
	ErrDuplicateID = errors.New("duplicate task id")
)

// SyntaxError reports a malformed scenario block, with the 1-based source
// line where the problem was detected (spec.md §7: "reported with
// file:line").
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s:%d: %s", ErrSyntax.Error(), e.File, e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// DuplicateIDError reports that two blocks declared the same task id.
type DuplicateIDError struct {
	File string
	Line int
	ID   string
}

func (e *DuplicateIDError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s:%d: task id %q already defined", ErrDuplicateID.Error(), e.File, e.Line, e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }
