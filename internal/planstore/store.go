// Package planstore persists a plan.Plan to a single file and serializes
// every read-modify-write against it with an exclusive advisory lock
// (spec.md §4.3), so that multiple worker pools — in one process or many
// cooperating processes on a shared filesystem — can lease and report on
// tasks without a coordinator process.
package planstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"taskplan/internal/plan"
)

// Counts is the result of Snapshot, used by the worker pool and driver to
// detect quiescence (spec.md §4.3 "snapshot").
type Counts struct {
	Pending, Waiting, InProgress, Done, Failed int
}

func (c Counts) Total() int { return c.Pending + c.Waiting + c.InProgress + c.Done + c.Failed }

// Quiescent reports whether no further progress is possible without
// operator intervention: nothing pending, waiting, or in flight.
func (c Counts) Quiescent() bool { return c.Pending == 0 && c.Waiting == 0 && c.InProgress == 0 }

// Outcome is what a worker reports back for a leased task (spec.md §4.4
// step 3).
type Outcome struct {
	Success bool
	Kind    string // one of IO_ERROR, INVALID_PARAMS, DATA_ERROR, INTERNAL, UPSTREAM_FAILURE, LEASE_EXHAUSTED
	Message string
}

// Store is a file-backed plan store (spec.md §4.3). One Store is safe for
// concurrent use by multiple goroutines in one process (serialized by mu);
// cross-process coordination is provided by an advisory lock on the sibling
// file planPath+".lock", which, unlike planPath, is never replaced by rename.
type Store struct {
	mu          sync.Mutex
	planPath    string
	lock        *flock.Flock
	leaseTTL    time.Duration
	maxAttempts int
}

// New returns a Store backed by planPath (spec.md §6: "<scenario>.plan").
func New(planPath string, leaseTTL time.Duration, maxAttempts int) *Store {
	return &Store{
		planPath:    planPath,
		lock:        flock.New(planPath + ".lock"),
		leaseTTL:    leaseTTL,
		maxAttempts: maxAttempts,
	}
}

func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("planstore: acquire lock: %w", err)
	}
	defer s.lock.Unlock()
	return fn()
}

func (s *Store) readLocked() (*document, error) {
	f, err := os.Open(s.planPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f)
}

func (s *Store) writeLocked(doc *document) error {
	dir := filepath.Dir(s.planPath)
	base := filepath.Base(s.planPath)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(encode(doc)); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.planPath)
}

// InitializeIfAbsent writes p to disk if the plan file does not yet exist.
// If it exists, the stored scenario hash must match p.ScenarioSHA256, or
// ScenarioChangedError is returned (spec.md §4.3).
func (s *Store) InitializeIfAbsent(p *plan.Plan) error {
	return s.withLock(func() error {
		_, statErr := os.Stat(s.planPath)
		switch {
		case statErr == nil:
			doc, err := s.readLocked()
			if err != nil {
				return err
			}
			if doc.scenarioSHA256 != p.ScenarioSHA256 {
				return &ScenarioChangedError{PlanPath: s.planPath, Stored: doc.scenarioSHA256, Current: p.ScenarioSHA256}
			}
			return nil
		case os.IsNotExist(statErr):
			created := p.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			doc := &document{scenarioSHA256: p.ScenarioSHA256, created: created, tasks: p.Tasks}
			return s.writeLocked(doc)
		default:
			return statErr
		}
	})
}

// Lease scans tasks in plan order, promotes PENDING tasks whose
// dependencies are all DONE to WAITING, fails PENDING tasks with a FAILED
// dependency, then transitions up to n WAITING tasks to IN_PROGRESS under
// owner (spec.md §4.3 "lease").
func (s *Store) Lease(owner string, n int) ([]*plan.Task, error) {
	var leased []*plan.Task
	err := s.withLock(func() error {
		doc, err := s.readLocked()
		if err != nil {
			return err
		}
		changed := promoteAndPropagate(doc.tasks)

		now := time.Now()
		for _, t := range doc.tasks {
			if len(leased) >= n {
				break
			}
			if t.Status != plan.Waiting {
				continue
			}
			t.Status = plan.InProgress
			t.Owner = owner
			t.LeaseExpiry = now.Add(s.leaseTTL)
			leased = append(leased, t.Clone())
			changed = true
		}
		if !changed {
			return nil
		}
		return s.writeLocked(doc)
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// promoteAndPropagate applies the automatic PENDING transitions of §3 to a
// fixed point, so that a single lease call observes every transitive
// upstream failure (spec.md invariant 6). It reports whether it changed any
// task's status, so callers that only propagate (no new leases) still
// persist the result instead of silently discarding it.
func promoteAndPropagate(tasks []*plan.Task) bool {
	byID := make(map[string]*plan.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	anyChange := false
	for changed := true; changed; {
		changed = false
		for _, t := range tasks {
			if t.Status != plan.Pending {
				continue
			}
			anyFailed, allDone := false, true
			for _, dep := range t.Dependencies {
				d := byID[dep]
				if d == nil {
					continue
				}
				if d.Status == plan.Failed {
					anyFailed = true
				}
				if d.Status != plan.Done {
					allDone = false
				}
			}
			switch {
			case anyFailed:
				t.Status = plan.Failed
				t.FailureKind = "UPSTREAM_FAILURE"
				t.FailureMessage = "upstream failure"
				changed = true
			case allDone:
				t.Status = plan.Waiting
				changed = true
			}
		}
		anyChange = anyChange || changed
	}
	return anyChange
}

// Report records the outcome of a leased task. If owner no longer holds
// the lease, *StaleLeaseError is returned and the report is otherwise
// discarded (spec.md §7 "StaleLease").
func (s *Store) Report(owner, taskID string, outcome Outcome) error {
	return s.withLock(func() error {
		doc, err := s.readLocked()
		if err != nil {
			return err
		}
		t := findTask(doc.tasks, taskID)
		if t == nil {
			return fmt.Errorf("planstore: report: unknown task %q", taskID)
		}
		if t.Status != plan.InProgress || t.Owner != owner {
			return &StaleLeaseError{TaskID: taskID, Owner: owner}
		}
		t.Owner = ""
		t.LeaseExpiry = time.Time{}
		if outcome.Success {
			t.Status = plan.Done
		} else {
			t.Status = plan.Failed
			t.FailureKind = outcome.Kind
			t.FailureMessage = outcome.Message
		}
		return s.writeLocked(doc)
	})
}

// Snapshot returns status counts across the whole plan (spec.md §4.3).
func (s *Store) Snapshot() (Counts, error) {
	var c Counts
	err := s.withLock(func() error {
		doc, err := s.readLocked()
		if err != nil {
			return err
		}
		for _, t := range doc.tasks {
			switch t.Status {
			case plan.Pending:
				c.Pending++
			case plan.Waiting:
				c.Waiting++
			case plan.InProgress:
				c.InProgress++
			case plan.Done:
				c.Done++
			case plan.Failed:
				c.Failed++
			}
		}
		return nil
	})
	return c, err
}

// ReclaimExpired resets any IN_PROGRESS record whose lease has expired back
// to WAITING, bumping attempt; a task that exhausts maxAttempts is marked
// FAILED(LEASE_EXHAUSTED) instead (spec.md §5, §4.3).
func (s *Store) ReclaimExpired(now time.Time) error {
	return s.withLock(func() error {
		doc, err := s.readLocked()
		if err != nil {
			return err
		}
		dirty := false
		for _, t := range doc.tasks {
			if t.Status != plan.InProgress || !t.LeaseExpiry.Before(now) {
				continue
			}
			t.Attempt++
			t.Owner = ""
			t.LeaseExpiry = time.Time{}
			if t.Attempt > s.maxAttempts {
				t.Status = plan.Failed
				t.FailureKind = "LEASE_EXHAUSTED"
				t.FailureMessage = "too many abandoned lease attempts"
			} else {
				t.Status = plan.Waiting
			}
			dirty = true
		}
		if !dirty {
			return nil
		}
		return s.writeLocked(doc)
	})
}

func findTask(tasks []*plan.Task, id string) *plan.Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
