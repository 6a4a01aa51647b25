package planstore

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"taskplan/internal/plan"
)

const formatVersion = "v1"

var headerLine = regexp.MustCompile(`^PLAN v1 scenario_sha256=([0-9a-f]+) created=(\S+)$`)

const taskFieldCount = 11

// document is the decoded form of a plan file (spec.md §6 "Plan file
// format").
type document struct {
	scenarioSHA256 string
	created        time.Time
	tasks          []*plan.Task
}

func encode(doc *document) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "PLAN %s scenario_sha256=%s created=%s\n", formatVersion, doc.scenarioSHA256, doc.created.UTC().Format(time.RFC3339Nano))
	for _, t := range doc.tasks {
		b.WriteString(encodeTask(t))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func decode(r io.Reader) (*document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("planstore: empty plan file")
	}
	m := headerLine.FindStringSubmatch(sc.Text())
	if m == nil {
		return nil, fmt.Errorf("planstore: malformed header line %q", sc.Text())
	}
	created, err := time.Parse(time.RFC3339Nano, m[2])
	if err != nil {
		return nil, fmt.Errorf("planstore: malformed created timestamp: %w", err)
	}
	doc := &document{scenarioSHA256: m[1], created: created}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		t, err := decodeTask(line)
		if err != nil {
			return nil, err
		}
		doc.tasks = append(doc.tasks, t)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func encodeTask(t *plan.Task) string {
	owner := "-"
	if t.Owner != "" {
		owner = escapeField(t.Owner)
	}
	expiry := "-"
	if !t.LeaseExpiry.IsZero() {
		expiry = t.LeaseExpiry.UTC().Format(time.RFC3339Nano)
	}
	errField := "-"
	if t.FailureKind != "" {
		errField = escapeField(t.FailureKind) + ":" + escapeField(t.FailureMessage)
	}
	fields := []string{
		escapeField(t.ID),
		t.Status.String(),
		strconv.Itoa(t.Attempt),
		owner,
		expiry,
		escapeField(t.ClassName),
		joinCSV(t.Dependencies),
		joinCSV(t.Inputs),
		joinCSV(t.Outputs),
		encodeParams(t.Params),
		errField,
	}
	return strings.Join(fields, "\t")
}

func decodeTask(line string) (*plan.Task, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != taskFieldCount {
		return nil, fmt.Errorf("planstore: task line has %d fields, want %d: %q", len(fields), taskFieldCount, line)
	}
	status, ok := plan.ParseStatus(fields[1])
	if !ok {
		return nil, fmt.Errorf("planstore: unknown status %q", fields[1])
	}
	attempt, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("planstore: malformed attempt %q: %w", fields[2], err)
	}
	t := &plan.Task{
		ID:           unescapeField(fields[0]),
		Status:       status,
		Attempt:      attempt,
		ClassName:    unescapeField(fields[5]),
		Dependencies: splitCSV(fields[6]),
		Inputs:       splitCSV(fields[7]),
		Outputs:      splitCSV(fields[8]),
		Params:       decodeParams(fields[9]),
	}
	if fields[3] != "-" {
		t.Owner = unescapeField(fields[3])
	}
	if fields[4] != "-" {
		expiry, err := time.Parse(time.RFC3339Nano, fields[4])
		if err != nil {
			return nil, fmt.Errorf("planstore: malformed expiry %q: %w", fields[4], err)
		}
		t.LeaseExpiry = expiry
	}
	if fields[10] != "-" {
		kind, msg, err := splitErrorField(fields[10])
		if err != nil {
			return nil, err
		}
		t.FailureKind = kind
		t.FailureMessage = msg
	}
	return t, nil
}

func splitErrorField(raw string) (kind, msg string, err error) {
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("planstore: malformed error field %q", raw)
	}
	return unescapeField(raw[:idx]), unescapeField(raw[idx+1:]), nil
}

// escapeField/unescapeField implement the `%`-encoding of spec.md §6:
// `%` encodes `\t`, `\n`, `|`, and itself.
func escapeField(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '%':
			b.WriteString("%25")
		case '\t':
			b.WriteString("%09")
		case '\n':
			b.WriteString("%0A")
		case '|':
			b.WriteString("%7C")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeField(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			switch s[i+1 : i+3] {
			case "25":
				b.WriteByte('%')
				i += 2
				continue
			case "09":
				b.WriteByte('\t')
				i += 2
				continue
			case "0A":
				b.WriteByte('\n')
				i += 2
				continue
			case "7C":
				b.WriteByte('|')
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func joinCSV(fields []string) string {
	if len(fields) == 0 {
		return "-"
	}
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escapeField(f)
	}
	return strings.Join(escaped, "|")
}

func splitCSV(s string) []string {
	if s == "-" || s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = unescapeField(p)
	}
	return out
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, escapeField(k)+"="+escapeField(params[k]))
	}
	return strings.Join(parts, "|")
}

func decodeParams(s string) map[string]string {
	out := map[string]string{}
	if s == "-" || s == "" {
		return out
	}
	for _, part := range strings.Split(s, "|") {
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			continue
		}
		out[unescapeField(part[:idx])] = unescapeField(part[idx+1:])
	}
	return out
}
