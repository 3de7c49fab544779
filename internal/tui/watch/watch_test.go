package watch

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/QKD-VITAP/qkdctl/internal/channel"
	"github.com/QKD-VITAP/qkdctl/internal/client"
	"github.com/QKD-VITAP/qkdctl/internal/clock"
	"github.com/QKD-VITAP/qkdctl/internal/notify"
	"github.com/QKD-VITAP/qkdctl/internal/tracker"
)

type stubAPI struct{ id string }

func (s stubAPI) CreateSimulation(context.Context, client.SimulationRequest) (*client.SimulationAccepted, error) {
	return &client.SimulationAccepted{SimulationID: s.id, Status: client.StatusRunning}, nil
}

func (s stubAPI) SimulationStatus(context.Context, string) (*client.SimulationStatus, error) {
	return &client.SimulationStatus{SimulationID: s.id, Status: client.StatusRunning}, nil
}

func newFixture(t *testing.T) (Model, *tracker.Tracker) {
	t.Helper()

	clk := clock.NewFake()
	hub := notify.NewHub(clk)
	ch := channel.New("ws://test/ws", channel.WithClock(clk))
	tr := tracker.New(stubAPI{id: "sim-1"}, tracker.WithClock(clk))

	return New(ch, tr, hub), tr
}

func TestView_ConnectionStates(t *testing.T) {
	m, _ := newFixture(t)

	next, _ := m.Update(channelEventMsg{Status: channel.Status{State: channel.StateReconnecting, Attempt: 2}})
	view := next.View()

	if !strings.Contains(view, "reconnecting (attempt 2)") {
		t.Errorf("expected reconnecting line, got:\n%s", view)
	}

	next, _ = m.Update(channelEventMsg{Status: channel.Status{State: channel.StateConnected}})
	if !strings.Contains(next.View(), "connected") {
		t.Errorf("expected connected line, got:\n%s", next.View())
	}
}

func TestView_JobProgressAndResult(t *testing.T) {
	m, _ := newFixture(t)

	next, _ := m.Update(jobMsg(tracker.Job{ID: "sim-1", State: tracker.StateRunning, Progress: 40}))
	view := next.View()

	if !strings.Contains(view, "sim-1 running 40%") {
		t.Errorf("expected running job line, got:\n%s", view)
	}

	next, _ = m.Update(jobMsg(tracker.Job{
		ID:       "sim-1",
		State:    tracker.StateCompleted,
		Progress: 100,
		Result:   map[string]any{"qber": 0.021, "final_key_length": 512},
	}))
	view = next.View()

	if !strings.Contains(view, "sim-1 completed") || !strings.Contains(view, "qber: 0.021") {
		t.Errorf("expected completion summary, got:\n%s", view)
	}
}

func TestView_Notifications(t *testing.T) {
	m, _ := newFixture(t)

	next, _ := m.Update(notifyMsg([]notify.Entry{
		{Text: "connected to simulation feed", Severity: notify.Success},
		{Text: "simulation sim-2 failed: boom", Severity: notify.Error, Phase: notify.Exiting},
	}))
	view := next.View()

	if !strings.Contains(view, "connected to simulation feed") {
		t.Errorf("expected success notification, got:\n%s", view)
	}

	if !strings.Contains(view, "simulation sim-2 failed: boom") {
		t.Errorf("expected error notification, got:\n%s", view)
	}
}

func TestUpdate_ChannelFrameFoldsIntoTracker(t *testing.T) {
	m, tr := newFixture(t)

	if _, err := tr.Submit(context.Background(), client.DefaultSimulationRequest()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	m.Update(channelEventMsg{
		Status: channel.Status{State: channel.StateConnected},
		Latest: &channel.Message{
			Type:         channel.TypeSimulationComplete,
			SimulationID: "sim-1",
			Result:       map[string]any{"qber": 0.03},
		},
	})

	job, ok := tr.Snapshot()
	if !ok || job.State != tracker.StateCompleted {
		t.Fatalf("expected channel frame to complete the job, got %+v", job)
	}

	if job.Result["qber"] != 0.03 {
		t.Errorf("expected result folded in, got %v", job.Result)
	}
}

func TestUpdate_QuitKeyReleasesSubscriptions(t *testing.T) {
	m, _ := newFixture(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}

	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit")
	}
}
