package plan

import (
	"errors"
	"fmt"
)

// Sentinel errors for the plan builder (spec.md §7), in the categorized
// style of the teacher's internal/graph/errors.go.
var (
	ErrOutputCollision  = errors.New("output collision")
	ErrCyclicPlan       = errors.New("cyclic plan")
	ErrUnmatchedPattern = errors.New("unmatched pattern")
	ErrCrossProduct     = errors.New("wildcard cross-product rejected")
)

// OutputCollisionError reports that two tasks declare the same concrete
// output path (spec.md §4.2 rule 4, §3 invariant).
type OutputCollisionError struct {
	Path   string
	First  string
	Second string
}

func (e *OutputCollisionError) Error() string {
	return fmt.Sprintf("%s: %q is produced by both %q and %q", ErrOutputCollision.Error(), e.Path, e.First, e.Second)
}

func (e *OutputCollisionError) Unwrap() error { return ErrOutputCollision }

// CyclicPlanError reports a dependency cycle discovered at build time
// (spec.md §4.2 "Dependency inference").
type CyclicPlanError struct {
	Cycle []string
}

func (e *CyclicPlanError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCyclicPlan.Error(), e.Cycle)
}

func (e *CyclicPlanError) Unwrap() error { return ErrCyclicPlan }

// UnmatchedPatternError reports a wildcard-bearing descriptor with no
// matching concrete input (spec.md §3 invariant).
type UnmatchedPatternError struct {
	DescriptorID string
	Pattern      string
}

func (e *UnmatchedPatternError) Error() string {
	return fmt.Sprintf("%s: descriptor %q: pattern %q matched nothing", ErrUnmatchedPattern.Error(), e.DescriptorID, e.Pattern)
}

func (e *UnmatchedPatternError) Unwrap() error { return ErrUnmatchedPattern }

// CrossProductError reports that a descriptor's multiple wildcard input
// patterns produced different binding sets (spec.md §4.2 rule 3).
type CrossProductError struct {
	DescriptorID string
}

func (e *CrossProductError) Error() string {
	return fmt.Sprintf("%s: descriptor %q: wildcard input patterns do not share one binding set", ErrCrossProduct.Error(), e.DescriptorID)
}

func (e *CrossProductError) Unwrap() error { return ErrCrossProduct }
