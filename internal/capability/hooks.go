package capability

import (
	"fmt"
	"sync"

	"taskplan/internal/obslog"
)

// Hooks observes task execution around Perform. Implementations provide
// both BeforeTask and AfterTask; worker.New treats a nil Hooks as NopHooks (spec.md §9 carries the teacher's plugin-hook
// idiom forward, narrowed to the two points the engine actually exposes).
type Hooks interface {
	BeforeTask(id, className string)
	AfterTask(id, className string, err error)
}

type nopHooks struct{}

func (nopHooks) BeforeTask(string, string)       {}
func (nopHooks) AfterTask(string, string, error) {}

// NopHooks is a Hooks that does nothing.
var NopHooks Hooks = nopHooks{}

// LoggingHooks logs before/after each task at obslog.LevelDebug, recovering
// from any panic raised while it logs (for example by its Logger) so that a
// buggy observer can never take down a worker; recovered panics are kept for
// Errors (the teacher's HookEngine panic-safety, narrowed to one hook pair).
type LoggingHooks struct {
	log  obslog.Logger
	mu   sync.Mutex
	errs []error
}

// NewLoggingHooks returns a Hooks that logs task start/end through log.
func NewLoggingHooks(log obslog.Logger) *LoggingHooks {
	if log == nil {
		log = obslog.Nop{}
	}
	return &LoggingHooks{log: log}
}

func (h *LoggingHooks) BeforeTask(id, className string) {
	defer h.recover("BeforeTask", id)
	h.log.Logf(obslog.LevelDebug, "task %s (%s): starting", id, className)
}

func (h *LoggingHooks) AfterTask(id, className string, err error) {
	defer h.recover("AfterTask", id)
	if err != nil {
		h.log.Logf(obslog.LevelDebug, "task %s (%s): finished with error: %v", id, className, err)
		return
	}
	h.log.Logf(obslog.LevelDebug, "task %s (%s): finished", id, className)
}

func (h *LoggingHooks) recover(hook, id string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("capability: hook %s for task %s panicked: %v", hook, id, r)
		h.mu.Lock()
		h.errs = append(h.errs, err)
		h.mu.Unlock()
		h.log.Logf(obslog.LevelWarn, "%v", err)
	}
}

// Errors returns hook panics observed so far.
func (h *LoggingHooks) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]error, len(h.errs))
	copy(out, h.errs)
	return out
}
