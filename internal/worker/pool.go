// Package worker runs W cooperative workers against one plan store handle
// (spec.md §4.4): each worker loops lease -> instantiate -> perform ->
// report, backing off when there is nothing ready, until the plan is
// quiescent.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"taskplan/internal/capability"
	"taskplan/internal/obslog"
	"taskplan/internal/plan"
	"taskplan/internal/planstore"
)

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// Pool runs a fixed number of workers against a shared Store.
type Pool struct {
	store     *planstore.Store
	registry  *capability.Registry
	hooks     capability.Hooks
	log       obslog.Logger
	count     int
	batchSize int
}

// New returns a Pool of count workers, each leasing up to batchSize tasks
// per call (spec.md §4.5 "--threads/-t", "--retrieve_count/-c").
func New(store *planstore.Store, registry *capability.Registry, hooks capability.Hooks, log obslog.Logger, count, batchSize int) *Pool {
	if hooks == nil {
		hooks = capability.NopHooks
	}
	if log == nil {
		log = obslog.Nop{}
	}
	return &Pool{store: store, registry: registry, hooks: hooks, log: log, count: count, batchSize: batchSize}
}

// Run spawns the worker pool and blocks until the plan is quiescent or ctx
// is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	pid := os.Getpid()

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.count; i++ {
		index := i
		owner := fmt.Sprintf("%s:%d:%d", hostname, pid, index)
		eg.Go(func() error {
			return p.runWorker(ctx, owner)
		})
	}
	return eg.Wait()
}

// runWorker is the loop of spec.md §4.4.
func (p *Pool) runWorker(ctx context.Context, owner string) error {
	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		leased, err := p.store.Lease(owner, p.batchSize)
		if err != nil {
			return fmt.Errorf("worker %s: lease: %w", owner, err)
		}

		if len(leased) == 0 {
			counts, err := p.store.Snapshot()
			if err != nil {
				return fmt.Errorf("worker %s: snapshot: %w", owner, err)
			}
			if counts.Quiescent() {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff
		for _, task := range leased {
			p.executeAndReport(ctx, owner, task)
		}
		if err := p.store.ReclaimExpired(time.Now()); err != nil {
			return fmt.Errorf("worker %s: reclaim_expired: %w", owner, err)
		}
	}
}

func (p *Pool) executeAndReport(ctx context.Context, owner string, task *plan.Task) {
	p.hooks.BeforeTask(task.ID, task.ClassName)
	outcome, perr := p.perform(ctx, task)
	p.hooks.AfterTask(task.ID, task.ClassName, perr)

	if err := p.store.Report(owner, task.ID, outcome); err != nil {
		if errors.Is(err, planstore.ErrStaleLease) {
			p.log.Logf(obslog.LevelWarn, "task %s: lease no longer held, report discarded", task.ID)
			return
		}
		p.log.Logf(obslog.LevelError, "task %s: report failed: %v", task.ID, err)
	}
}

// perform resolves, constructs, and runs the task's capability, mapping
// any error into a planstore.Outcome (spec.md §4.4 step 3).
func (p *Pool) perform(ctx context.Context, task *plan.Task) (planstore.Outcome, error) {
	ctor, ok := p.registry.Lookup(task.ClassName)
	if !ok {
		err := fmt.Errorf("no capability registered for class %q", task.ClassName)
		return outcomeFromError(err), err
	}

	cap, err := ctor(task.ID, task.Params, task.Inputs, task.Outputs)
	if err != nil {
		return outcomeFromError(err), err
	}
	if err := cap.Perform(ctx); err != nil {
		return outcomeFromError(err), err
	}
	return planstore.Outcome{Success: true}, nil
}

func outcomeFromError(err error) planstore.Outcome {
	var te *capability.TaskError
	if errors.As(err, &te) {
		return planstore.Outcome{Kind: string(te.Kind), Message: te.Message}
	}
	return planstore.Outcome{Kind: string(capability.Internal), Message: err.Error()}
}
