// Command taskplan is the process driver for the task plan engine
// (spec.md §4.5): it parses a scenario file, builds the task plan, seeds
// the plan store, runs a worker pool, and exits with a code reflecting
// whether every task reached DONE.
package main

import (
	"errors"
	"fmt"
	"os"

	"taskplan/internal/cli"
	"taskplan/internal/obslog"
)

func main() {
	inv, err := cli.ParseInvocation(os.Args[1:])
	if err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
			os.Exit(invErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitParseOrBuildError)
	}

	log := obslog.New(os.Stderr, obslog.Level(inv.Verbosity))

	if err := os.Chdir(inv.WorkDir); err != nil {
		fmt.Fprintf(os.Stderr, "taskplan: chdir %s: %v\n", inv.WorkDir, err)
		os.Exit(cli.ExitParseOrBuildError)
	}
	inv.WorkDir = "."

	if err := cli.Execute(inv, log, os.Stdout); err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
			os.Exit(invErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitParseOrBuildError)
	}
	os.Exit(cli.ExitSuccess)
}
