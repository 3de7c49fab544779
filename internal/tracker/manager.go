package tracker

import (
	"context"
	"sync"

	"github.com/QKD-VITAP/qkdctl/internal/client"
)

// Manager owns one Tracker per submitted simulation, keyed by the
// platform's simulation id. It exists for callers that follow several
// simulations in one process; single-shot commands use a Tracker
// directly.
type Manager struct {
	api  API
	opts []Option

	mu       sync.Mutex
	trackers map[string]*Tracker
	order    []string
}

// NewManager creates a manager issuing calls through api. The options
// are applied to every tracker it creates.
func NewManager(api API, opts ...Option) *Manager {
	return &Manager{
		api:      api,
		opts:     opts,
		trackers: make(map[string]*Tracker),
	}
}

// Submit creates a tracker for the request and starts following it.
// On submission failure no tracker is retained.
func (m *Manager) Submit(ctx context.Context, req client.SimulationRequest) (string, error) {
	tr := New(m.api, m.opts...)

	id, err := tr.Submit(ctx, req)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.trackers[id]; !exists {
		m.order = append(m.order, id)
	}

	m.trackers[id] = tr

	return id, nil
}

// Get returns the tracker following the given simulation.
func (m *Manager) Get(id string) (*Tracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, ok := m.trackers[id]

	return tr, ok
}

// Jobs returns a snapshot of every tracked simulation in submission
// order.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]Job, 0, len(m.order))

	for _, id := range m.order {
		if job, ok := m.trackers[id].Snapshot(); ok {
			jobs = append(jobs, job)
		}
	}

	return jobs
}

// ResetAll resets and forgets every tracker.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	trackers := m.trackers
	m.trackers = make(map[string]*Tracker)
	m.order = nil
	m.mu.Unlock()

	for _, tr := range trackers {
		tr.Reset()
	}
}
