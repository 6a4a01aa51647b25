package plan

import (
	"regexp"
	"strings"
)

// pattern is a compiled wildcard path pattern (spec.md §4.2: `*` matches text
// within one path segment, either the whole segment or part of it as in
// `*.txt`; a whole `**` segment matches any number of segments).
type pattern struct {
	raw        string
	re         *regexp.Regexp
	numBinding int
}

func compilePattern(raw string) *pattern {
	segs := strings.Split(raw, "/")
	var b strings.Builder
	b.WriteByte('^')
	n := 0
	for i, seg := range segs {
		if i > 0 {
			b.WriteByte('/')
		}
		switch seg {
		case "**":
			b.WriteString("(.*)")
			n++
		case "*":
			b.WriteString("([^/]+)")
			n++
		default:
			parts := strings.Split(seg, "*")
			for j, part := range parts {
				if j > 0 {
					b.WriteString("([^/]+)")
					n++
				}
				b.WriteString(regexp.QuoteMeta(part))
			}
		}
	}
	b.WriteByte('$')
	return &pattern{raw: raw, re: regexp.MustCompile(b.String()), numBinding: n}
}

func (p *pattern) isWildcard() bool { return p.numBinding > 0 }

// match reports whether candidate matches p, returning the substrings
// captured by its `*`/`**` segments in left-to-right order.
func (p *pattern) match(candidate string) (binding []string, ok bool) {
	m := p.re.FindStringSubmatch(candidate)
	if m == nil {
		return nil, false
	}
	return m[1:], true
}

// bindingKey turns a binding tuple into a map key comparable across
// patterns (spec.md §4.2 rule 3: "patterns must share one binding set").
func bindingKey(binding []string) string {
	return strings.Join(binding, "\x1f")
}

// substitute fills a (possibly wildcard) output pattern's `*`/`**` segments
// with the values of binding, in order.
func substitute(raw string, binding []string) string {
	if len(binding) == 0 {
		return raw
	}
	segs := strings.Split(raw, "/")
	idx := 0
	for i, seg := range segs {
		if seg == "*" || seg == "**" {
			if idx < len(binding) {
				segs[i] = binding[idx]
				idx++
			}
		} else if parts := strings.Split(seg, "*"); len(parts) > 1 {
			seg = parts[0]
			for _, part := range parts[1:] {
				if idx < len(binding) {
					seg += binding[idx]
					idx++
				} else {
					seg += "*"
				}
				seg += part
			}
			segs[i] = seg
		}
	}
	return strings.Join(segs, "/")
}
