package plan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"taskplan/internal/scenario"
)

// outputSource records where a concrete output path came from, so a later
// descriptor's wildcard inputs can match both files already on disk and
// files that will be produced by an earlier task (spec.md §4.2 rule 2).
type outputSource struct {
	path   string
	taskID string
}

// Build expands descriptors (in textual order) into a validated Plan rooted
// at workdir (spec.md §4.2 "Plan construction").
//
// Errors: *OutputCollisionError, *CyclicPlanError, *UnmatchedPatternError,
// *CrossProductError.
func Build(descriptors []scenario.TaskDescriptor, workdir string) (*Plan, error) {
	var tasks []*Task
	var produced []outputSource // every concrete output seen so far, in emission order

	for _, d := range descriptors {
		expanded, err := expandDescriptor(d, workdir, produced)
		if err != nil {
			return nil, err
		}
		for _, t := range expanded {
			tasks = append(tasks, t)
			for _, out := range t.Outputs {
				produced = append(produced, outputSource{path: out, taskID: t.ID})
			}
		}
	}

	if err := checkOutputCollisions(tasks); err != nil {
		return nil, err
	}
	inferDependencies(tasks)
	if err := checkCycles(tasks); err != nil {
		return nil, err
	}
	markReady(tasks)

	return &Plan{Tasks: tasks}, nil
}

// expandDescriptor turns one descriptor into one or more concrete Tasks.
func expandDescriptor(d scenario.TaskDescriptor, workdir string, produced []outputSource) ([]*Task, error) {
	if !d.HasWildcard() {
		return []*Task{{
			ID:        d.ID,
			ClassName: d.ClassName,
			Params:    copyParams(d.Params),
			Inputs:    append([]string(nil), d.Inputs...),
			Outputs:   append([]string(nil), d.Outputs...),
			Status:    Pending,
		}}, nil
	}

	inputPatterns := make([]*pattern, len(d.Inputs))
	for i, raw := range d.Inputs {
		inputPatterns[i] = compilePattern(raw)
	}

	// bindingSets[i] = binding-key -> matched concrete path, for inputPatterns[i].
	bindingSets := make([]map[string]string, len(inputPatterns))
	var firstWildcardIdx = -1
	for i, p := range inputPatterns {
		if !p.isWildcard() {
			continue
		}
		if firstWildcardIdx == -1 {
			firstWildcardIdx = i
		}
		matches, err := matchCandidates(p, workdir, produced)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, &UnmatchedPatternError{DescriptorID: d.ID, Pattern: p.raw}
		}
		bindingSets[i] = matches
	}

	if firstWildcardIdx == -1 {
		// Only the outputs carry wildcards; nothing to bind against inputs.
		return nil, &UnmatchedPatternError{DescriptorID: d.ID, Pattern: d.Outputs[0]}
	}

	// Every wildcard-bearing input pattern must produce the exact same set
	// of binding keys (spec.md §4.2 rule 3: cross-product rejected).
	reference := bindingSets[firstWildcardIdx]
	for i, set := range bindingSets {
		if set == nil || i == firstWildcardIdx {
			continue
		}
		if !sameKeys(reference, set) {
			return nil, &CrossProductError{DescriptorID: d.ID}
		}
	}

	keys := make([]string, 0, len(reference))
	for k := range reference {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tasks := make([]*Task, 0, len(keys))
	for _, key := range keys {
		binding := splitBindingKey(key)
		inputs := make([]string, len(d.Inputs))
		for i, raw := range d.Inputs {
			if inputPatterns[i].isWildcard() {
				inputs[i] = bindingSets[i][key]
			} else {
				inputs[i] = raw
			}
		}
		outputs := make([]string, len(d.Outputs))
		for i, raw := range d.Outputs {
			outputs[i] = substitute(raw, binding)
		}
		tasks = append(tasks, &Task{
			ID:        d.ID + "#" + bindingSuffix(binding),
			ClassName: d.ClassName,
			Params:    copyParams(d.Params),
			Inputs:    inputs,
			Outputs:   outputs,
			Status:    Pending,
		})
	}
	return tasks, nil
}

// matchCandidates finds every concrete path matching p, drawn from files
// already on disk under workdir and from outputs produced by earlier
// descriptors (spec.md §4.2 rule 2: "matched against the workdir and
// against earlier tasks' outputs").
func matchCandidates(p *pattern, workdir string, produced []outputSource) (map[string]string, error) {
	matches := make(map[string]string)

	for _, src := range produced {
		if binding, ok := p.match(src.path); ok {
			matches[bindingKey(binding)] = src.path
		}
	}

	err := filepath.WalkDir(workdir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(workdir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if binding, ok := p.match(rel); ok {
			key := bindingKey(binding)
			if _, exists := matches[key]; !exists {
				matches[key] = rel
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return matches, nil
}

func sameKeys(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func splitBindingKey(key string) []string {
	var out []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '\x1f' {
			out = append(out, key[start:i])
			start = i + 1
		}
	}
	out = append(out, key[start:])
	return out
}

func bindingSuffix(binding []string) string {
	s := ""
	for i, b := range binding {
		if i > 0 {
			s += ","
		}
		s += b
	}
	return s
}

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func checkOutputCollisions(tasks []*Task) error {
	owner := make(map[string]string)
	for _, t := range tasks {
		for _, out := range t.Outputs {
			if first, exists := owner[out]; exists {
				return &OutputCollisionError{Path: out, First: first, Second: t.ID}
			}
			owner[out] = t.ID
		}
	}
	return nil
}

// markReady promotes a task born with no dependencies straight to WAITING
// (spec.md §3: a task "is born PENDING or WAITING (if it has no deps) when
// the plan is first written"), so a --parse_only report reflects it without
// needing a planstore.Lease call to perform the promotion.
func markReady(tasks []*Task) {
	for _, t := range tasks {
		if len(t.Dependencies) == 0 {
			t.Status = Waiting
		}
	}
}

// inferDependencies wires each task to the tasks that produce its inputs
// (spec.md §4.2 "Dependency inference").
func inferDependencies(tasks []*Task) {
	producer := make(map[string]string, len(tasks))
	for _, t := range tasks {
		for _, out := range t.Outputs {
			producer[out] = t.ID
		}
	}
	for _, t := range tasks {
		seen := make(map[string]bool)
		for _, in := range t.Inputs {
			if pid, ok := producer[in]; ok && pid != t.ID && !seen[pid] {
				seen[pid] = true
				t.Dependencies = append(t.Dependencies, pid)
			}
		}
		sort.Strings(t.Dependencies)
	}
}

// checkCycles runs DFS with coloring over the dependency graph, in the
// style of the teacher's graph.Validate cycle check.
func checkCycles(tasks []*Task) error {
	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var path []string

	var dfs func(id string) error
	dfs = func(id string) error {
		color[id] = gray
		path = append(path, id)

		deps := append([]string(nil), byID[id].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if color[dep] == gray {
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), dep)
				return &CyclicPlanError{Cycle: cycle}
			}
			if color[dep] == white {
				if err := dfs(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if err := dfs(id); err != nil {
				return err
			}
		}
	}
	return nil
}
