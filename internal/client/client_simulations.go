package client

import (
	"context"
	"fmt"
	"net/http"
)

// Simulation status values reported by the platform.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SimulationRequest holds BB84 simulation parameters.
type SimulationRequest struct {
	NumQubits              int                `json:"num_qubits"`
	ChannelLength          float64            `json:"channel_length"`
	ChannelAttenuation     float64            `json:"channel_attenuation"`
	ChannelDepolarization  float64            `json:"channel_depolarization"`
	PhotonSourceEfficiency float64            `json:"photon_source_efficiency"`
	DetectorEfficiency     float64            `json:"detector_efficiency"`
	AttackType             string             `json:"attack_type,omitempty"`
	AttackParameters       map[string]float64 `json:"attack_parameters,omitempty"`
}

// DefaultSimulationRequest returns the platform's documented defaults:
// 1000 qubits over a 10 km channel with 0.1 dB/km attenuation.
func DefaultSimulationRequest() SimulationRequest {
	return SimulationRequest{
		NumQubits:              1000,
		ChannelLength:          10.0,
		ChannelAttenuation:     0.1,
		ChannelDepolarization:  0.01,
		PhotonSourceEfficiency: 0.8,
		DetectorEfficiency:     0.8,
	}
}

// SimulationAccepted is the response to a simulation submission.
type SimulationAccepted struct {
	SimulationID   string         `json:"simulation_id"`
	Status         string         `json:"status"`
	Message        string         `json:"message"`
	Timestamp      string         `json:"timestamp"`
	ResultsSummary map[string]any `json:"results_summary,omitempty"`
}

// SimulationStatus is one status poll response.
type SimulationStatus struct {
	SimulationID string         `json:"simulation_id"`
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	Results      map[string]any `json:"results,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// HistoryResponse lists previously completed simulations.
type HistoryResponse struct {
	TotalSimulations int              `json:"total_simulations"`
	Simulations      []map[string]any `json:"simulations"`
}

// SweepRequest runs the base simulation once per combination of the
// swept values. Each sweep key must name a base parameter field.
type SweepRequest struct {
	BaseParameters  SimulationRequest    `json:"base_parameters"`
	SweepParameters map[string][]float64 `json:"sweep_parameters"`
}

// SweepResult summarizes a completed parameter sweep.
type SweepResult struct {
	Message          string   `json:"message"`
	SimulationIDs    []string `json:"simulation_ids"`
	TotalSimulations int      `json:"total_simulations"`
}

// CreateSimulation submits a simulation for background execution.
// The returned id is polled via SimulationStatus.
func (c *Client) CreateSimulation(ctx context.Context, req SimulationRequest) (*SimulationAccepted, error) {
	var resp SimulationAccepted
	if err := c.doJSON(ctx, http.MethodPost, "/simulate/bb84/async", req, &resp); err != nil {
		return nil, err
	}

	if resp.SimulationID == "" {
		return nil, fmt.Errorf("submission accepted without a simulation id")
	}

	return &resp, nil
}

// RunSimulation executes a simulation synchronously, blocking until the
// server returns the final summary.
func (c *Client) RunSimulation(ctx context.Context, req SimulationRequest) (*SimulationAccepted, error) {
	var resp SimulationAccepted
	if err := c.doJSON(ctx, http.MethodPost, "/simulate/bb84", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// SimulationStatus fetches the current status of a background simulation.
func (c *Client) SimulationStatus(ctx context.Context, simulationID string) (*SimulationStatus, error) {
	var resp SimulationStatus
	if err := c.doJSON(ctx, http.MethodGet, "/simulate/status/"+simulationID, nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// ParameterSweep runs one simulation per combination of the swept
// values, blocking until the whole sweep completes.
func (c *Client) ParameterSweep(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	if len(req.SweepParameters) == 0 {
		return nil, fmt.Errorf("sweep needs at least one parameter range")
	}

	var resp SweepResult
	if err := c.doJSON(ctx, http.MethodPost, "/simulate/parameter-sweep", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// History fetches the stored simulation history.
func (c *Client) History(ctx context.Context) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, "/simulate/history", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}
