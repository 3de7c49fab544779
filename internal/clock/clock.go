// Package clock abstracts timer scheduling behind a cancellable handle.
//
// Components that schedule delayed work (reconnect backoff, poll loops,
// notification expiry) take a Clock so teardown can cancel pending timers
// deterministically and tests can drive time without sleeping.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable handle for a scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// callback from firing. Stop is safe to call more than once.
	Stop() bool
}

// Clock schedules callbacks and reads the current time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// System returns a Clock backed by the runtime timers.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) Stop() bool { return s.t.Stop() }

// Fake is a manually advanced Clock for tests. Callbacks run synchronously
// on the goroutine calling Advance, in due-time order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	nextID  int
}

// NewFake returns a Fake clock starting at a fixed instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

// AfterFunc registers fn to run once the fake clock advances past d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	t := &fakeTimer{
		clock: f,
		id:    f.nextID,
		due:   f.now.Add(d),
		fn:    fn,
	}
	f.pending = append(f.pending, t)

	return t
}

// Advance moves the fake time forward, firing due callbacks in order.
// Callbacks may schedule further timers; those fire too if they fall
// within the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.popDue(target)
		if t == nil {
			break
		}

		f.mu.Lock()
		if t.due.After(f.now) {
			f.now = t.due
		}
		f.mu.Unlock()

		t.fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

// PendingCount reports how many timers are armed. Used by cancellation tests.
func (f *Fake) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.pending)
}

// popDue removes and returns the earliest timer due at or before target.
func (f *Fake) popDue(target time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	sort.SliceStable(f.pending, func(i, j int) bool {
		if f.pending[i].due.Equal(f.pending[j].due) {
			return f.pending[i].id < f.pending[j].id
		}

		return f.pending[i].due.Before(f.pending[j].due)
	})

	if len(f.pending) == 0 || f.pending[0].due.After(target) {
		return nil
	}

	t := f.pending[0]
	f.pending = f.pending[1:]

	return t
}

func (f *Fake) remove(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, t := range f.pending {
		if t.id == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return true
		}
	}

	return false
}

type fakeTimer struct {
	clock *Fake
	id    int
	due   time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	return t.clock.remove(t.id)
}
