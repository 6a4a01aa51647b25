// Package cli parses the process driver's command line into a canonical
// Invocation (spec.md §4.5), separately from executing it, in the style of
// the teacher's ParseInvocation/Execute split.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Exit codes (spec.md §4.5).
const (
	ExitSuccess           = 0
	ExitAnyFailed         = 1
	ExitParseOrBuildError = 2
)

// Invocation is the canonical, parsed driver invocation.
type Invocation struct {
	ScenarioPattern string // positional, glob-expanded by the driver
	Threads         int
	Verbosity       int
	RetrieveCount   int
	ParseOnly       bool
	WorkDir         string
	LeaseTTL        time.Duration
	MaxAttempts     int
}

// InvocationError carries an exit code alongside a user-facing message, in
// the style of the teacher's InvocationError.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitParseOrBuildError, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses args (excluding argv[0]) into an Invocation
// (spec.md §4.5).
func ParseInvocation(args []string) (Invocation, error) {
	fs := pflag.NewFlagSet("taskplan", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	threads := fs.IntP("threads", "t", 1, "number of worker threads")
	verbosity := fs.IntP("verbosity", "v", 0, "log verbosity, 0-4")
	retrieveCount := fs.IntP("retrieve_count", "c", 10, "tasks leased per batch")
	parseOnly := fs.BoolP("parse_only", "p", false, "parse and build the plan, then exit")
	workdir := fs.StringP("workdir", "d", ".", "working directory scenario paths resolve against")
	leaseTTL := fs.Duration("lease-ttl", time.Hour, "lease time-to-live before a task is reclaimed")
	maxAttempts := fs.Int("max-attempts", 3, "attempts before a reclaimed task is marked LEASE_EXHAUSTED")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidf("%v", err)
	}

	if fs.NArg() != 1 {
		return Invocation{}, invalidf("expected exactly one scenario path argument, got %d", fs.NArg())
	}
	if *verbosity < 0 || *verbosity > 4 {
		return Invocation{}, invalidf("--verbosity must be in 0-4, got %d", *verbosity)
	}
	if *threads < 1 {
		return Invocation{}, invalidf("--threads must be >= 1, got %d", *threads)
	}
	if *retrieveCount < 1 {
		return Invocation{}, invalidf("--retrieve_count must be >= 1, got %d", *retrieveCount)
	}
	if *maxAttempts < 1 {
		return Invocation{}, invalidf("--max-attempts must be >= 1, got %d", *maxAttempts)
	}

	return Invocation{
		ScenarioPattern: strings.TrimSpace(fs.Arg(0)),
		Threads:         *threads,
		Verbosity:       *verbosity,
		RetrieveCount:   *retrieveCount,
		ParseOnly:       *parseOnly,
		WorkDir:         *workdir,
		LeaseTTL:        *leaseTTL,
		MaxAttempts:     *maxAttempts,
	}, nil
}

// ExitCode extracts the driver's exit code from a terminal error, or
// ExitSuccess if err is nil (spec.md §4.5).
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitParseOrBuildError
	}
	return ExitParseOrBuildError
}
