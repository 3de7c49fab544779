// Package tracker drives an asynchronous simulation from submission to
// a terminal state.
//
// After a successful submission the tracker polls the status endpoint
// on its own timers; callers read the latest snapshot at any time
// without blocking. Polls for a job are strictly sequential and stop
// the instant the job reaches a terminal state.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/QKD-VITAP/qkdctl/internal/client"
	"github.com/QKD-VITAP/qkdctl/internal/clock"
	"github.com/QKD-VITAP/qkdctl/internal/notify"
)

const (
	// DefaultInitialDelay is how long after submission the first poll
	// is issued.
	DefaultInitialDelay = time.Second
	// DefaultPollInterval separates a poll from the processing of the
	// previous poll's response.
	DefaultPollInterval = 2 * time.Second
)

// State is the tracked job's lifecycle position.
type State string

// Job states. Completed and Failed are terminal.
const (
	StateIdle      State = "idle"
	StateSubmitted State = "submitted"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is a point-in-time snapshot of the tracked simulation. Cause
// carries the underlying error when the failure originated locally
// (a status fetch that could not complete).
type Job struct {
	ID          string
	State       State
	Progress    int
	Result      map[string]any
	Reason      string
	Cause       error
	SubmittedAt time.Time
}

// SubmitError reports a failed submission. No polling was started.
type SubmitError struct {
	Cause error
}

func (e *SubmitError) Error() string { return "submission failed: " + e.Cause.Error() }
func (e *SubmitError) Unwrap() error { return e.Cause }

// StatusFetchError is the poll failure that moved a job to Failed.
type StatusFetchError struct {
	SimulationID string
	Cause        error
}

func (e *StatusFetchError) Error() string {
	return fmt.Sprintf("status fetch for simulation %s: %v", e.SimulationID, e.Cause)
}

func (e *StatusFetchError) Unwrap() error { return e.Cause }

// API is the slice of the platform client the tracker uses.
type API interface {
	CreateSimulation(ctx context.Context, req client.SimulationRequest) (*client.SimulationAccepted, error)
	SimulationStatus(ctx context.Context, simulationID string) (*client.SimulationStatus, error)
}

// Tracker owns one simulation's submit, poll, terminal lifecycle.
type Tracker struct {
	api          API
	clk          clock.Clock
	hub          *notify.Hub
	logger       *slog.Logger
	initialDelay time.Duration
	interval     time.Duration

	mu         sync.Mutex
	generation int
	job        *Job
	pollTimer  clock.Timer
	pollCancel context.CancelFunc
	notified   map[string]bool
	subs       map[int]chan Job
	nextSub    int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the timer source (used in tests).
func WithClock(clk clock.Clock) Option {
	return func(t *Tracker) { t.clk = clk }
}

// WithNotifications routes terminal-failure events to a hub.
func WithNotifications(hub *notify.Hub) Option {
	return func(t *Tracker) { t.hub = hub }
}

// WithIntervals overrides the initial poll delay and re-poll interval.
func WithIntervals(initial, interval time.Duration) Option {
	return func(t *Tracker) {
		t.initialDelay = initial
		t.interval = interval
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// New creates an idle tracker issuing calls through api.
func New(api API, opts ...Option) *Tracker {
	t := &Tracker{
		api:          api,
		clk:          clock.System(),
		logger:       slog.Default(),
		initialDelay: DefaultInitialDelay,
		interval:     DefaultPollInterval,
		notified:     make(map[string]bool),
		subs:         make(map[int]chan Job),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Submit issues the creation call and, on acceptance, begins polling
// after the initial delay. On failure no polling starts. A tracker
// already following a non-terminal job rejects the submission.
func (t *Tracker) Submit(ctx context.Context, req client.SimulationRequest) (string, error) {
	t.mu.Lock()

	if t.job != nil && !t.job.State.Terminal() {
		t.mu.Unlock()
		return "", fmt.Errorf("simulation %s is still being tracked", t.job.ID)
	}

	gen := t.generation
	t.mu.Unlock()

	accepted, err := t.api.CreateSimulation(ctx, req)
	if err != nil {
		return "", &SubmitError{Cause: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.generation != gen {
		// Reset raced the submission; drop the result.
		return accepted.SimulationID, nil
	}

	t.job = &Job{
		ID:          accepted.SimulationID,
		State:       StateSubmitted,
		SubmittedAt: t.clk.Now(),
	}
	t.schedulePollLocked(gen, t.initialDelay)
	t.publishLocked()

	return accepted.SimulationID, nil
}

// Reset returns the tracker to its pre-submission state. Any pending
// poll timer is cancelled before Reset returns, and an in-flight poll
// is cancelled and its response discarded.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generation++

	if t.pollTimer != nil {
		t.pollTimer.Stop()
		t.pollTimer = nil
	}

	if t.pollCancel != nil {
		t.pollCancel()
		t.pollCancel = nil
	}

	t.job = nil
	t.publishLocked()
}

// Snapshot returns the current job record. ok is false while idle.
func (t *Tracker) Snapshot() (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job == nil {
		return Job{State: StateIdle}, false
	}

	return t.snapshotLocked(), true
}

// Watch returns a coalescing subscription to job snapshots. The cancel
// func releases the subscription and closes the channel.
func (t *Tracker) Watch() (<-chan Job, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++

	ch := make(chan Job, 1)
	t.subs[id] = ch
	ch <- t.currentLocked()

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
}

// Observe folds a push-channel update for the tracked job into the
// record. Updates for other jobs are ignored. A terminal update stops
// polling; its failure notification shares the de-duplication key with
// the poll path, so the same job never notifies twice.
func (t *Tracker) Observe(simulationID, status string, progress int, result map[string]any, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job == nil || t.job.ID != simulationID || t.job.State.Terminal() {
		return
	}

	switch status {
	case client.StatusCompleted:
		t.completeLocked(result)
	case client.StatusFailed:
		t.failLocked(reason)
	default:
		t.job.State = StateRunning

		if progress > t.job.Progress {
			t.job.Progress = progress
		}
	}

	t.publishLocked()
}

// schedulePollLocked arms the single poll timer. One timer chain per
// job keeps polls strictly sequential.
func (t *Tracker) schedulePollLocked(gen int, delay time.Duration) {
	t.pollTimer = t.clk.AfterFunc(delay, func() {
		t.poll(gen)
	})
}

// poll issues one status fetch and processes its response. The next
// poll is scheduled only after processing completes.
func (t *Tracker) poll(gen int) {
	t.mu.Lock()

	if t.generation != gen || t.job == nil || t.job.State.Terminal() {
		t.mu.Unlock()
		return
	}

	t.pollTimer = nil
	id := t.job.ID

	ctx, cancel := context.WithCancel(context.Background())
	t.pollCancel = cancel
	t.mu.Unlock()

	resp, err := t.api.SimulationStatus(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.generation == gen {
		t.pollCancel = nil
	}

	if t.generation != gen || t.job == nil || t.job.State.Terminal() {
		// A terminal state reached while the fetch was in flight (a
		// push-channel completion folded in via Observe) wins over
		// the stale response.
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by Reset; the response is discarded.
			return
		}

		// A dead status endpoint must not poll forever.
		t.logger.Debug("status fetch failed", "simulation_id", id, "error", err)
		t.job.Cause = &StatusFetchError{SimulationID: id, Cause: err}
		t.failLocked("simulation status unavailable")
		t.publishLocked()

		return
	}

	switch resp.Status {
	case client.StatusCompleted:
		t.completeLocked(resp.Results)
	case client.StatusFailed:
		t.failLocked(resp.Error)
	default:
		t.job.State = StateRunning

		if resp.Progress > t.job.Progress {
			t.job.Progress = resp.Progress
		}

		t.schedulePollLocked(gen, t.interval)
	}

	t.publishLocked()
}

func (t *Tracker) completeLocked(result map[string]any) {
	t.job.State = StateCompleted
	t.job.Progress = 100
	t.job.Result = result
	t.stopPollingLocked()
}

func (t *Tracker) failLocked(reason string) {
	if reason == "" {
		reason = "simulation failed"
	}

	t.job.State = StateFailed
	t.job.Reason = reason
	t.stopPollingLocked()

	if t.hub != nil && !t.notified[t.job.ID] {
		t.notified[t.job.ID] = true
		t.hub.Push(fmt.Sprintf("simulation %s failed: %s", t.job.ID, reason), notify.Error)
	}
}

func (t *Tracker) stopPollingLocked() {
	if t.pollTimer != nil {
		t.pollTimer.Stop()
		t.pollTimer = nil
	}
}

func (t *Tracker) snapshotLocked() Job {
	job := *t.job

	return job
}

func (t *Tracker) currentLocked() Job {
	if t.job == nil {
		return Job{State: StateIdle}
	}

	return t.snapshotLocked()
}

func (t *Tracker) publishLocked() {
	snap := t.currentLocked()

	for _, sub := range t.subs {
		select {
		case sub <- snap:
		default:
			select {
			case <-sub:
			default:
			}

			select {
			case sub <- snap:
			default:
			}
		}
	}
}
