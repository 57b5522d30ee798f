// Package progress tracks aggregate progress of fan-out operations.
//
// A Tracker is created once per top-level operation and shared by every
// concurrent branch of it. The target total grows while work is being
// discovered, so observers must not assume it is final until the whole
// operation has returned.
package progress

import (
	"sync"
	"time"
)

// Snapshot is an immutable view of a Tracker at one point in time.
type Snapshot struct {
	Passed  int
	Failed  int
	Target  int
	Message string
	Elapsed time.Duration
}

// Completed returns the number of finished steps, passed or failed.
func (s Snapshot) Completed() int {
	return s.Passed + s.Failed
}

// Percent returns completion in percent of the current target total.
// The value can decrease between calls while new work is discovered.
func (s Snapshot) Percent() float64 {
	if s.Target == 0 {
		return 0
	}
	return 100 * float64(s.Completed()) / float64(s.Target)
}

// StepFunc observes tracker snapshots, typically to render a progress line.
type StepFunc func(Snapshot)

// Tracker counts passed and failed steps of one operation.
//
// All methods are safe for concurrent use. Step events are forwarded to
// an observer goroutine over a buffered channel; when the observer falls
// behind, intermediate events are dropped rather than blocking workers.
// Snapshots carry absolute counts, so dropped events only skip display
// updates, never progress.
type Tracker struct {
	mu      sync.Mutex
	passed  int
	failed  int
	target  int
	message string
	start   time.Time

	events chan Snapshot
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{events: make(chan Snapshot, 64)}
}

// AddTarget grows the target total by n. Discoverers call this as soon
// as new work units are found.
func (t *Tracker) AddTarget(n int) {
	t.mu.Lock()
	t.target += n
	t.mu.Unlock()
}

// Step records one finished work unit and emits a snapshot to the
// observer, if any.
func (t *Tracker) Step(ok bool, message string) {
	t.mu.Lock()
	if t.start.IsZero() {
		t.start = time.Now()
	}
	if ok {
		t.passed++
	} else {
		t.failed++
	}
	t.message = message
	snap := t.snapshotLocked()
	t.mu.Unlock()

	select {
	case t.events <- snap:
	default:
	}
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	var elapsed time.Duration
	if !t.start.IsZero() {
		elapsed = time.Since(t.start)
	}
	return Snapshot{
		Passed:  t.passed,
		Failed:  t.failed,
		Target:  t.target,
		Message: t.message,
		Elapsed: elapsed,
	}
}

// Watch starts an observer goroutine that calls fn for every step event
// until the returned stop function is called. Stop waits for the
// observer to drain and exit, so fn is never called after stop returns.
func (t *Tracker) Watch(fn StepFunc) (stop func()) {
	done := make(chan struct{})
	quit := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case snap := <-t.events:
				fn(snap)
			case <-quit:
				// Drain anything emitted before stop.
				for {
					select {
					case snap := <-t.events:
						fn(snap)
					default:
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
		})
	}
}
