package scenario

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// headerPattern matches a block header line: `<id> : <class_name>`.
// Per spec.md §6: `^\s*([\w.-]+)\s*:\s*([\w.]+)\s*$`.
var headerPattern = regexp.MustCompile(`^\s*([\w.-]+)\s*:\s*([\w.]+)\s*$`)

// Parse reads a scenario file and returns its task descriptors in textual
// order (spec.md §4.1 "Preserves the textual order of descriptors").
//
// Errors: *SyntaxError on malformed input, *DuplicateIDError if two blocks
// share an id.
func Parse(path string) ([]TaskDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseReader(path, f)
}

// ParseReader parses scenario text from r. displayName is used only to
// annotate error messages (spec.md §7: "reported with file:line").
func ParseReader(displayName string, r io.Reader) ([]TaskDescriptor, error) {
	lines, err := readAllLines(r)
	if err != nil {
		return nil, err
	}

	var descriptors []TaskDescriptor
	seen := make(map[string]int) // id -> line of first definition

	i := 0
	for i < len(lines) {
		if isBlankForSeparation(lines[i]) {
			i++
			continue
		}

		d, next, err := parseBlock(displayName, lines, i)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[d.ID]; dup {
			return nil, &DuplicateIDError{File: displayName, Line: d.Line, ID: d.ID}
		}
		seen[d.ID] = d.Line
		descriptors = append(descriptors, d)
		i = next
	}

	return descriptors, nil
}

// readAllLines splits r into raw lines (no trailing newline), 1-indexed by
// callers via index+1.
func readAllLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// isBlankForSeparation reports whether a line is blank once its trailing
// comment (introduced by `#`) is stripped. Comment-only lines count as
// blank for the purpose of finding block boundaries.
func isBlankForSeparation(line string) bool {
	return strings.TrimSpace(stripComment(line)) == ""
}

// stripComment removes a `#`-introduced trailing comment from a line that is
// not a params value line (spec.md §6: "`#` introduces a comment" applies to
// structural lines; parameter values are read verbatim to end-of-line).
func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// parseBlock parses one block starting at lines[start] (guaranteed
// non-blank) and returns the descriptor plus the index to resume scanning
// from (the first blank-for-separation line after the block, or len(lines)).
func parseBlock(file string, lines []string, start int) (TaskDescriptor, int, error) {
	header := stripComment(lines[start])
	m := headerPattern.FindStringSubmatch(header)
	if m == nil {
		return TaskDescriptor{}, 0, &SyntaxError{File: file, Line: start + 1, Msg: fmt.Sprintf("malformed block header %q", strings.TrimSpace(lines[start]))}
	}

	d := TaskDescriptor{ID: m[1], ClassName: m[2], Line: start + 1, Params: map[string]string{}}

	haveIn, haveOut := false, false
	i := start + 1
	for i < len(lines) {
		if isBlankForSeparation(lines[i]) {
			break
		}

		raw := lines[i]
		stripped := stripComment(raw)
		trimmed := strings.TrimSpace(stripped)

		switch {
		case strings.HasPrefix(trimmed, "in:"):
			pats, err := parsePatternList(file, i+1, trimmed[len("in:"):])
			if err != nil {
				return TaskDescriptor{}, 0, err
			}
			d.Inputs = pats
			haveIn = true
			i++

		case strings.HasPrefix(trimmed, "out:"):
			pats, err := parsePatternList(file, i+1, trimmed[len("out:"):])
			if err != nil {
				return TaskDescriptor{}, 0, err
			}
			d.Outputs = pats
			haveOut = true
			i++

		case trimmed == "params:":
			i++
			for i < len(lines) && !isBlankForSeparation(lines[i]) {
				paramLine := lines[i]
				paramStripped := strings.TrimSpace(paramLine)
				// Stop the params block if we hit a new keyword or header at
				// the same indentation level.
				if strings.HasPrefix(paramStripped, "in:") || strings.HasPrefix(paramStripped, "out:") || paramStripped == "params:" {
					break
				}
				if paramStripped == "" {
					i++
					continue
				}
				key, value, err := parseParamLine(file, i+1, paramLine)
				if err != nil {
					return TaskDescriptor{}, 0, err
				}
				d.Params[key] = value
				i++
			}

		default:
			return TaskDescriptor{}, 0, &SyntaxError{File: file, Line: i + 1, Msg: fmt.Sprintf("expected in:/out:/params:, got %q", trimmed)}
		}
	}

	if !haveIn {
		return TaskDescriptor{}, 0, &SyntaxError{File: file, Line: d.Line, Msg: fmt.Sprintf("task %q missing required 'in:' block", d.ID)}
	}
	if !haveOut {
		return TaskDescriptor{}, 0, &SyntaxError{File: file, Line: d.Line, Msg: fmt.Sprintf("task %q missing required 'out:' block", d.ID)}
	}

	return d, i, nil
}

// parsePatternList parses the comma-separated pattern list following an
// `in:`/`out:` keyword.
func parsePatternList(file string, line int, rest string) ([]string, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, &SyntaxError{File: file, Line: line, Msg: "expected at least one pattern"}
	}
	parts := strings.Split(rest, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &SyntaxError{File: file, Line: line, Msg: "empty pattern in list"}
		}
		out = append(out, p)
	}
	return out, nil
}

// parseParamLine parses a `key = value` line. Values are read verbatim to
// end-of-line (spec.md §6: "may contain embedded spaces and are read to
// end-of-line") — no comment stripping is applied here.
func parseParamLine(file string, line int, raw string) (key, value string, err error) {
	trimmed := strings.TrimSpace(raw)
	idx := strings.Index(trimmed, "=")
	if idx < 0 {
		return "", "", &SyntaxError{File: file, Line: line, Msg: fmt.Sprintf("malformed param line %q, expected 'key = value'", trimmed)}
	}
	key = strings.TrimSpace(trimmed[:idx])
	if key == "" {
		return "", "", &SyntaxError{File: file, Line: line, Msg: "empty param key"}
	}
	value = strings.TrimRight(trimmed[idx+1:], " \t")
	value = strings.TrimPrefix(value, " ")
	return key, value, nil
}
