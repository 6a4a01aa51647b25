package planstore

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taskplan/internal/plan"
)

func samplePlan() *plan.Plan {
	return &plan.Plan{
		ScenarioSHA256: "deadbeef",
		Tasks: []*plan.Task{
			{ID: "A", ClassName: "Cat", Params: map[string]string{}, Inputs: []string{"a.txt"}, Outputs: []string{"b.txt"}, Status: plan.Waiting},
			{ID: "B", ClassName: "Cat", Params: map[string]string{}, Inputs: []string{"b.txt"}, Outputs: []string{"c.txt"}, Dependencies: []string{"A"}, Status: plan.Pending},
		},
	}
}

func TestInitializeIfAbsent_CreatesThenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.plan")
	s := New(path, time.Hour, 3)

	if err := s.InitializeIfAbsent(samplePlan()); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := s.InitializeIfAbsent(samplePlan()); err != nil {
		t.Fatalf("second init should be a no-op, got: %v", err)
	}

	counts, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if counts.Total() != 2 {
		t.Fatalf("expected 2 tasks, got %d", counts.Total())
	}
}

func TestInitializeIfAbsent_ScenarioChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.plan")
	s := New(path, time.Hour, 3)
	if err := s.InitializeIfAbsent(samplePlan()); err != nil {
		t.Fatalf("init: %v", err)
	}

	other := samplePlan()
	other.ScenarioSHA256 = "cafebabe"
	err := s.InitializeIfAbsent(other)
	if !errors.Is(err, ErrScenarioChanged) {
		t.Fatalf("expected ErrScenarioChanged, got %v", err)
	}
}

func TestLease_OrderAndDependencyGate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.plan")
	s := New(path, time.Hour, 3)
	if err := s.InitializeIfAbsent(samplePlan()); err != nil {
		t.Fatalf("init: %v", err)
	}

	leased, err := s.Lease("owner-1", 10)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(leased) != 1 || leased[0].ID != "A" {
		t.Fatalf("expected only A leased (B is PENDING), got %v", leased)
	}

	if err := s.Report("owner-1", "A", Outcome{Success: true}); err != nil {
		t.Fatalf("report: %v", err)
	}

	leased, err = s.Lease("owner-1", 10)
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if len(leased) != 1 || leased[0].ID != "B" {
		t.Fatalf("expected B to become leasable after A completes, got %v", leased)
	}
}

func TestReport_StaleLeaseRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.plan")
	s := New(path, time.Hour, 3)
	if err := s.InitializeIfAbsent(samplePlan()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := s.Lease("owner-1", 10); err != nil {
		t.Fatalf("lease: %v", err)
	}

	err := s.Report("owner-2", "A", Outcome{Success: true})
	if !errors.Is(err, ErrStaleLease) {
		t.Fatalf("expected ErrStaleLease, got %v", err)
	}
}

func TestReclaimExpired_RequeuesAndExhausts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.plan")
	s := New(path, time.Millisecond, 1)
	if err := s.InitializeIfAbsent(samplePlan()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := s.Lease("owner-1", 10); err != nil {
		t.Fatalf("lease: %v", err)
	}

	future := time.Now().Add(time.Hour)
	if err := s.ReclaimExpired(future); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	counts, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if counts.Waiting != 1 {
		t.Fatalf("expected A requeued to WAITING, got counts=%+v", counts)
	}

	if _, err := s.Lease("owner-2", 10); err != nil {
		t.Fatalf("lease: %v", err)
	}
	if err := s.ReclaimExpired(future); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	counts, err = s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if counts.Failed != 1 {
		t.Fatalf("expected A to be FAILED(LEASE_EXHAUSTED) after exceeding max attempts, got counts=%+v", counts)
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	doc := &document{
		scenarioSHA256: "abc123",
		created:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		tasks: []*plan.Task{
			{
				ID:           "X#a|b",
				ClassName:    "Copy",
				Status:       plan.Done,
				Attempt:      1,
				Inputs:       []string{"data/a.txt"},
				Outputs:      []string{"out/a.txt"},
				Dependencies: []string{"Y"},
				Params:       map[string]string{"mode": "100% fast"},
			},
		},
	}
	encoded := encode(doc)
	decoded, err := decode(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.scenarioSHA256 != doc.scenarioSHA256 {
		t.Errorf("scenario hash mismatch: %q vs %q", decoded.scenarioSHA256, doc.scenarioSHA256)
	}
	if len(decoded.tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(decoded.tasks))
	}
	got := decoded.tasks[0]
	if got.ID != "X#a|b" {
		t.Errorf("expected id to round-trip through escaping, got %q", got.ID)
	}
	if got.Params["mode"] != "100% fast" {
		t.Errorf("expected param to round-trip, got %q", got.Params["mode"])
	}
}
