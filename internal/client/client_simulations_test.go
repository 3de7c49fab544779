package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateSimulation_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/simulate/bb84/async" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req SimulationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		if req.NumQubits != 1000 {
			t.Errorf("expected default of 1000 qubits, got %d", req.NumQubits)
		}

		json.NewEncoder(w).Encode(SimulationAccepted{
			SimulationID: "sim-123",
			Status:       StatusRunning,
			Message:      "simulation started",
		})
	}))
	defer server.Close()

	c := New(server.URL)

	accepted, err := c.CreateSimulation(context.Background(), DefaultSimulationRequest())
	if err != nil {
		t.Fatalf("CreateSimulation failed: %v", err)
	}

	if accepted.SimulationID != "sim-123" {
		t.Errorf("expected simulation id sim-123, got %q", accepted.SimulationID)
	}

	if accepted.Status != StatusRunning {
		t.Errorf("expected status running, got %q", accepted.Status)
	}
}

func TestCreateSimulation_MissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SimulationAccepted{Status: StatusRunning})
	}))
	defer server.Close()

	c := New(server.URL)

	if _, err := c.CreateSimulation(context.Background(), DefaultSimulationRequest()); err == nil {
		t.Fatal("expected error for response without a simulation id")
	}
}

func TestSimulationStatus_ProgressSequence(t *testing.T) {
	responses := []SimulationStatus{
		{SimulationID: "sim-9", Status: StatusRunning, Progress: 40},
		{SimulationID: "sim-9", Status: StatusCompleted, Progress: 100, Results: map[string]any{"qber": 0.02}},
	}

	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simulate/status/sim-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		json.NewEncoder(w).Encode(responses[calls])
		calls++
	}))
	defer server.Close()

	c := New(server.URL)

	first, err := c.SimulationStatus(context.Background(), "sim-9")
	if err != nil {
		t.Fatalf("first poll failed: %v", err)
	}

	if first.Status != StatusRunning || first.Progress != 40 {
		t.Errorf("unexpected first poll: %+v", first)
	}

	second, err := c.SimulationStatus(context.Background(), "sim-9")
	if err != nil {
		t.Fatalf("second poll failed: %v", err)
	}

	if second.Status != StatusCompleted || second.Progress != 100 {
		t.Errorf("unexpected second poll: %+v", second)
	}

	if second.Results["qber"] != 0.02 {
		t.Errorf("expected qber in results, got %v", second.Results)
	}
}

func TestHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simulate/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		json.NewEncoder(w).Encode(HistoryResponse{
			TotalSimulations: 2,
			Simulations: []map[string]any{
				{"simulation_id": "sim-1"},
				{"simulation_id": "sim-2"},
			},
		})
	}))
	defer server.Close()

	c := New(server.URL)

	history, err := c.History(context.Background())
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if history.TotalSimulations != 2 || len(history.Simulations) != 2 {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestSimulateAttack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/attack/simulate" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req AttackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		if req.AttackType != "intercept_resend" {
			t.Errorf("unexpected attack type %q", req.AttackType)
		}

		json.NewEncoder(w).Encode(AttackResult{
			SimulationID:   "sim-7",
			AttackType:     req.AttackType,
			AttackDetected: true,
			QBER:           0.27,
			FinalKeyLength: 112,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	result, err := c.SimulateAttack(context.Background(), AttackRequest{
		NumQubits:     1000,
		ChannelLength: 10,
		AttackType:    "intercept_resend",
	})
	if err != nil {
		t.Fatalf("SimulateAttack failed: %v", err)
	}

	if !result.AttackDetected {
		t.Error("expected attack to be detected")
	}

	if result.QBER != 0.27 {
		t.Errorf("expected QBER 0.27, got %v", result.QBER)
	}
}

func TestQBERMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics/qber" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		json.NewEncoder(w).Encode(QBERMetrics{
			TotalSimulations: 5,
			AverageQBER:      0.031,
			RecentQBER:       []float64{0.02, 0.04},
		})
	}))
	defer server.Close()

	c := New(server.URL)

	metrics, err := c.QBERMetrics(context.Background())
	if err != nil {
		t.Fatalf("QBERMetrics failed: %v", err)
	}

	if metrics.TotalSimulations != 5 || len(metrics.RecentQBER) != 2 {
		t.Errorf("unexpected metrics: %+v", metrics)
	}
}
