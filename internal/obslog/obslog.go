// Package obslog provides the engine's append-only, line-buffered log sink.
//
// All writers share one underlying io.Writer guarded by a single mutex, per
// spec §5 ("the log sink, protected by its own mutex"). Verbosity follows
// spec §4.5: 0 writes no log lines at all, 4 is the most chatty.
package obslog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level is a verbosity level in the 0-4 range from --verbosity/-v.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelColor = map[Level]*color.Color{
	LevelError: color.New(color.FgRed, color.Bold),
	LevelWarn:  color.New(color.FgYellow),
	LevelInfo:  color.New(color.FgCyan),
	LevelDebug: color.New(color.FgWhite),
}

// Logger is the minimal logging interface the rest of the engine depends on.
// It is satisfied by the logger New returns and by Nop.
type Logger interface {
	Printf(format string, args ...any)
	Logf(level Level, format string, args ...any)
}

// New creates a Logger that writes to w at the given verbosity. Lines above
// the configured verbosity are dropped before ever reaching the mutex.
func New(w io.Writer, verbosity Level) *stdLogger {
	if w == nil {
		w = io.Discard
	}
	return &stdLogger{w: w, verbosity: verbosity, color: shouldColor(w)}
}

func shouldColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return color.NoColor == false && isTerminal(f)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

type stdLogger struct {
	mu        sync.Mutex
	w         io.Writer
	verbosity Level
	color     bool
}

// Printf logs at LevelInfo for compatibility with callers (e.g. the plugin
// hook style in the teacher repo) that only know a bare Printf signature.
func (l *stdLogger) Printf(format string, args ...any) {
	l.Logf(LevelInfo, format, args...)
}

// Logf writes one line if level is within the configured verbosity.
func (l *stdLogger) Logf(level Level, format string, args ...any) {
	if l == nil || level > l.verbosity {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] %s\n", time.Now().UTC().Format(time.RFC3339Nano), levelName(level), msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color {
		if c, ok := levelColor[level]; ok {
			c.Fprint(l.w, line)
			return
		}
	}
	io.WriteString(l.w, line)
}

func levelName(l Level) string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "SILENT"
	}
}

// Nop is a Logger that discards everything; used as a safe zero value.
type Nop struct{}

func (Nop) Printf(string, ...any)            {}
func (Nop) Logf(Level, string, ...any)       {}
