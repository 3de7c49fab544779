// Package notify schedules transient, auto-expiring status messages.
//
// Producers (the channel client, the simulation tracker, or commands)
// push entries; a renderer observes the ordered collection. Every entry
// passes through a short exiting phase before removal so a renderer
// always gets one frame to play an exit transition.
package notify

import (
	"sync"
	"time"

	"github.com/QKD-VITAP/qkdctl/internal/clock"
)

// Severity classifies an entry for rendering.
type Severity string

// Entry severities.
const (
	Success Severity = "success"
	Error   Severity = "error"
	Info    Severity = "info"
	Warning Severity = "warning"
)

// Phase is the lifecycle stage of an entry.
type Phase int

// Entry phases. An entry moves Active -> Exiting exactly once and is
// dropped from the collection after the grace period.
const (
	Active Phase = iota
	Exiting
)

const (
	// DefaultDuration is how long an entry stays active when the
	// producer does not say otherwise.
	DefaultDuration = 3 * time.Second
	// GracePeriod is how long an entry stays in the exiting phase
	// before removal.
	GracePeriod = 300 * time.Millisecond
)

// ID identifies a pushed entry.
type ID int64

// Entry is a snapshot of one notification.
type Entry struct {
	ID       ID
	Text     string
	Severity Severity
	Duration time.Duration
	Phase    Phase
	PushedAt time.Time
}

type tracked struct {
	entry       Entry
	expiryTimer clock.Timer
	graceTimer  clock.Timer
}

// Hub owns the ordered collection of notifications.
// All mutation is serialized behind one mutex; producers on any
// goroutine may push or dismiss concurrently.
type Hub struct {
	mu      sync.Mutex
	clk     clock.Clock
	nextID  ID
	entries []*tracked
	subs    map[int]chan []Entry
	nextSub int
	closed  bool
}

// NewHub creates a Hub scheduling on the given clock.
func NewHub(clk clock.Clock) *Hub {
	if clk == nil {
		clk = clock.System()
	}

	return &Hub{
		clk:  clk,
		subs: make(map[int]chan []Entry),
	}
}

// Option adjusts a pushed entry.
type Option func(*Entry)

// WithDuration overrides the active display duration.
func WithDuration(d time.Duration) Option {
	return func(e *Entry) { e.Duration = d }
}

// Push appends a new active entry and returns its id.
// Ordering is insertion order. Push never blocks.
func (h *Hub) Push(text string, sev Severity, opts ...Option) ID {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}

	h.nextID++

	e := Entry{
		ID:       h.nextID,
		Text:     text,
		Severity: sev,
		Duration: DefaultDuration,
		Phase:    Active,
		PushedAt: h.clk.Now(),
	}
	for _, opt := range opts {
		opt(&e)
	}

	tr := &tracked{entry: e}
	id := e.ID
	tr.expiryTimer = h.clk.AfterFunc(e.Duration, func() {
		h.beginExit(id)
	})

	h.entries = append(h.entries, tr)
	h.publishLocked()

	return id
}

// Dismiss moves an entry to the exiting phase immediately, regardless of
// elapsed duration. The exit grace period still applies. Unknown or
// already-exiting ids are ignored.
func (h *Hub) Dismiss(id ID) {
	h.beginExit(id)
}

// beginExit transitions Active -> Exiting and arms the removal timer.
func (h *Hub) beginExit(id ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	tr := h.findLocked(id)
	if tr == nil || tr.entry.Phase != Active {
		return
	}

	tr.entry.Phase = Exiting
	if tr.expiryTimer != nil {
		tr.expiryTimer.Stop()
	}

	tr.graceTimer = h.clk.AfterFunc(GracePeriod, func() {
		h.remove(id)
	})

	h.publishLocked()
}

func (h *Hub) remove(id ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for i, tr := range h.entries {
		if tr.entry.ID == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			h.publishLocked()

			return
		}
	}
}

// Entries returns a snapshot of the visible collection in insertion order.
func (h *Hub) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.snapshotLocked()
}

// Subscribe returns a channel receiving a fresh snapshot after every
// change, plus a cancel function. The channel coalesces: a slow consumer
// only ever sees the latest state.
func (h *Hub) Subscribe() (<-chan []Entry, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	id := h.nextSub
	ch := make(chan []Entry, 1)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
}

// Close cancels all pending timers and drops every entry. Pushes after
// Close are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for _, tr := range h.entries {
		if tr.expiryTimer != nil {
			tr.expiryTimer.Stop()
		}

		if tr.graceTimer != nil {
			tr.graceTimer.Stop()
		}
	}

	h.entries = nil

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) findLocked(id ID) *tracked {
	for _, tr := range h.entries {
		if tr.entry.ID == id {
			return tr
		}
	}

	return nil
}

func (h *Hub) snapshotLocked() []Entry {
	snapshot := make([]Entry, len(h.entries))
	for i, tr := range h.entries {
		snapshot[i] = tr.entry
	}

	return snapshot
}

func (h *Hub) publishLocked() {
	snapshot := h.snapshotLocked()

	for _, ch := range h.subs {
		select {
		case ch <- snapshot:
		default:
			// Replace the stale snapshot.
			select {
			case <-ch:
			default:
			}

			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
