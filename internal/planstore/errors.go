package planstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for the plan store (spec.md §7), mirrored on the
// scenario/plan packages' errors.Is/As pattern.
var (
	ErrScenarioChanged = errors.New("scenario changed")
	ErrStaleLease      = errors.New("stale lease")
)

// ScenarioChangedError reports that an existing plan file's scenario hash
// disagrees with the scenario being run (spec.md §4.3 initialize_if_absent).
type ScenarioChangedError struct {
	PlanPath string
	Stored   string
	Current  string
}

func (e *ScenarioChangedError) Error() string {
	return fmt.Sprintf("%s: %s: stored scenario_sha256=%s, current=%s", ErrScenarioChanged.Error(), e.PlanPath, e.Stored, e.Current)
}

func (e *ScenarioChangedError) Unwrap() error { return ErrScenarioChanged }

// StaleLeaseError reports that report() was called by an owner that no
// longer holds the task's lease (spec.md §7 "StaleLease").
type StaleLeaseError struct {
	TaskID string
	Owner  string
}

func (e *StaleLeaseError) Error() string {
	return fmt.Sprintf("%s: task %q: owner %q does not hold the current lease", ErrStaleLease.Error(), e.TaskID, e.Owner)
}

func (e *StaleLeaseError) Unwrap() error { return ErrStaleLease }
