package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"taskplan/internal/capability"
	"taskplan/internal/obslog"
	"taskplan/internal/plan"
	"taskplan/internal/planstore"
	"taskplan/internal/scenario"
	"taskplan/internal/worker"
)

// Execute runs inv to completion (spec.md §4.5 "Behavior"). The scenario
// path is glob-expanded; each match is an independent run, so a run whose
// tasks fail does not stop the others from executing. A parse, build or
// plan-store error in one run ends Execute at once with that error.
func Execute(inv Invocation, log obslog.Logger, stdout io.Writer) error {
	if log == nil {
		log = obslog.Nop{}
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	matches, err := filepath.Glob(inv.ScenarioPattern)
	if err != nil {
		return invalidf("glob scenario pattern %q: %v", inv.ScenarioPattern, err)
	}
	if len(matches) == 0 {
		matches = []string{inv.ScenarioPattern}
	}

	anyFailed := false
	for _, scenarioPath := range matches {
		runID := uuid.New().String()
		log.Logf(obslog.LevelInfo, "run %s: scenario %s", runID, scenarioPath)
		failed, err := runOne(inv, scenarioPath, log, stdout)
		if err != nil {
			return err
		}
		if failed {
			anyFailed = true
		}
	}

	if anyFailed {
		return &InvocationError{ExitCode: ExitAnyFailed, Message: "one or more tasks failed"}
	}
	return nil
}

// runOne parses, builds, and (unless --parse_only) runs one scenario
// (spec.md §4.5).
func runOne(inv Invocation, scenarioPath string, log obslog.Logger, stdout io.Writer) (failed bool, err error) {
	descriptors, err := scenario.Parse(scenarioPath)
	if err != nil {
		return false, &InvocationError{ExitCode: ExitParseOrBuildError, Message: err.Error()}
	}

	p, err := plan.Build(descriptors, inv.WorkDir)
	if err != nil {
		return false, &InvocationError{ExitCode: ExitParseOrBuildError, Message: err.Error()}
	}

	hash, err := hashScenarioFile(scenarioPath)
	if err != nil {
		return false, &InvocationError{ExitCode: ExitParseOrBuildError, Message: err.Error()}
	}
	p.ScenarioSHA256 = hash
	p.CreatedAt = time.Now()

	if inv.ParseOnly {
		printPlanSummary(stdout, scenarioPath, p)
		return false, nil
	}

	planPath := scenarioPath + ".plan"
	store := planstore.New(planPath, inv.LeaseTTL, inv.MaxAttempts)
	if err := store.InitializeIfAbsent(p); err != nil {
		return false, &InvocationError{ExitCode: ExitParseOrBuildError, Message: err.Error()}
	}

	log.Logf(obslog.LevelInfo, "scenario %s: plan ready at %s (%d tasks)", scenarioPath, planPath, len(p.Tasks))

	hooks := capability.NewLoggingHooks(log)
	pool := worker.New(store, capability.DefaultRegistry(), hooks, log, inv.Threads, inv.RetrieveCount)
	if err := pool.Run(context.Background()); err != nil {
		return false, fmt.Errorf("scenario %s: %w", scenarioPath, err)
	}

	counts, err := store.Snapshot()
	if err != nil {
		return false, fmt.Errorf("scenario %s: final snapshot: %w", scenarioPath, err)
	}
	log.Logf(obslog.LevelInfo, "scenario %s: done=%d failed=%d", scenarioPath, counts.Done, counts.Failed)
	return counts.Failed > 0, nil
}

func hashScenarioFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return plan.ScenarioHash(f)
}

// printPlanSummary is the `--parse_only` report (spec.md §4.2 "A
// --parse_only driver mode runs the parser + builder and exits").
func printPlanSummary(w io.Writer, scenarioPath string, p *plan.Plan) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "plan for %s\n", scenarioPath)
	fmt.Fprintf(w, "  %d tasks, scenario_sha256=%s\n", len(p.Tasks), p.ScenarioSHA256)
	for _, t := range p.Tasks {
		deps := "-"
		if len(t.Dependencies) > 0 {
			deps = fmt.Sprintf("%v", t.Dependencies)
		}
		fmt.Fprintf(w, "  %-20s %-10s class=%-10s deps=%s\n", t.ID, t.Status, t.ClassName, deps)
	}
}
