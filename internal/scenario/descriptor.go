// Package scenario implements the front end of the task plan engine: it
// turns the scenario text file (spec.md §4.1, §6) into an ordered sequence
// of TaskDescriptor values, in textual order, ready for the plan builder.
package scenario

// TaskDescriptor is the scenario-level, pre-expansion specification of one
// task block (spec.md §3 "TaskDescriptor").
type TaskDescriptor struct {
	ID        string
	ClassName string
	Inputs    []string
	Outputs   []string
	Params    map[string]string

	// Line is the 1-based source line of the block header, kept for
	// diagnostics. Textual order is carried by the position of the
	// descriptor in the returned slice, not by Line.
	Line int
}

// HasWildcard reports whether any input or output pattern contains a
// wildcard segment (`*` or `**`).
func (d TaskDescriptor) HasWildcard() bool {
	for _, p := range d.Inputs {
		if containsWildcard(p) {
			return true
		}
	}
	for _, p := range d.Outputs {
		if containsWildcard(p) {
			return true
		}
	}
	return false
}

func containsWildcard(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			return true
		}
	}
	return false
}
