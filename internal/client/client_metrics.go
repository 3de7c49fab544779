package client

import (
	"context"
	"net/http"
)

// QBERMetrics aggregates quantum bit error rates across stored runs.
type QBERMetrics struct {
	TotalSimulations int       `json:"total_simulations"`
	AverageQBER      float64   `json:"average_qber"`
	MinQBER          float64   `json:"min_qber"`
	MaxQBER          float64   `json:"max_qber"`
	RecentQBER       []float64 `json:"recent_qber"`
	Message          string    `json:"message,omitempty"`
}

// AttackRequest configures an eavesdropping scenario simulation.
type AttackRequest struct {
	NumQubits          int                `json:"num_qubits"`
	ChannelLength      float64            `json:"channel_length"`
	ChannelAttenuation float64            `json:"channel_attenuation"`
	AttackType         string             `json:"attack_type"`
	AttackParameters   map[string]float64 `json:"attack_parameters,omitempty"`
}

// AttackResult summarizes an attack scenario outcome.
type AttackResult struct {
	SimulationID   string         `json:"simulation_id"`
	AttackType     string         `json:"attack_type"`
	AttackDetected bool           `json:"attack_detected"`
	QBER           float64        `json:"qber"`
	FinalKeyLength int            `json:"final_key_length"`
	AttackDetails  map[string]any `json:"attack_details,omitempty"`
}

// Statistics holds aggregate simulator counters.
type Statistics struct {
	TotalSimulations int            `json:"total_simulations"`
	AverageQBER      float64        `json:"average_qber"`
	AverageKeyRate   float64        `json:"average_key_rate"`
	AttackBreakdown  map[string]int `json:"attack_breakdown,omitempty"`
}

// QBERMetrics fetches aggregate error-rate metrics.
func (c *Client) QBERMetrics(ctx context.Context) (*QBERMetrics, error) {
	var resp QBERMetrics
	if err := c.doJSON(ctx, http.MethodGet, "/metrics/qber", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// SimulateAttack runs an attack scenario and returns its summary.
func (c *Client) SimulateAttack(ctx context.Context, req AttackRequest) (*AttackResult, error) {
	var resp AttackResult
	if err := c.doJSON(ctx, http.MethodPost, "/attack/simulate", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Statistics fetches aggregate simulator counters.
func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var resp Statistics
	if err := c.doJSON(ctx, http.MethodGet, "/simulator/statistics", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}
