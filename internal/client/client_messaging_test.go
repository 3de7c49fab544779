package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParameterSweep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/simulate/parameter-sweep" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req SweepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		if req.BaseParameters.NumQubits != 1000 {
			t.Errorf("expected base parameters carried, got %+v", req.BaseParameters)
		}

		if len(req.SweepParameters["channel_length"]) != 3 {
			t.Errorf("unexpected sweep ranges: %v", req.SweepParameters)
		}

		json.NewEncoder(w).Encode(SweepResult{
			Message:          "Parameter sweep completed with 3 simulations",
			SimulationIDs:    []string{"sim-1", "sim-2", "sim-3"},
			TotalSimulations: 3,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	result, err := c.ParameterSweep(context.Background(), SweepRequest{
		BaseParameters:  DefaultSimulationRequest(),
		SweepParameters: map[string][]float64{"channel_length": {5, 10, 25}},
	})
	if err != nil {
		t.Fatalf("ParameterSweep failed: %v", err)
	}

	if result.TotalSimulations != 3 || len(result.SimulationIDs) != 3 {
		t.Errorf("unexpected sweep result: %+v", result)
	}
}

func TestParameterSweep_EmptyRangesRejectedLocally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request issued for an empty sweep")
	}))
	defer server.Close()

	c := New(server.URL)

	if _, err := c.ParameterSweep(context.Background(), SweepRequest{
		BaseParameters: DefaultSimulationRequest(),
	}); err == nil {
		t.Fatal("expected error for a sweep without ranges")
	}
}

func TestGenerateKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/messaging/keys/generate" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		if got := r.URL.Query().Get("user_id"); got != "alice" {
			t.Errorf("expected user_id=alice, got %q", got)
		}

		if got := r.URL.Query().Get("key_length"); got != "128" {
			t.Errorf("expected key_length=128, got %q", got)
		}

		json.NewEncoder(w).Encode(QuantumKey{
			UserID:       "alice",
			KeyLength:    128,
			KeyAvailable: true,
			ExpiresAt:    1700000300,
			SecurityMetrics: map[string]any{
				"qber":           0.018,
				"security_level": 0.95,
			},
		})
	}))
	defer server.Close()

	c := New(server.URL)

	key, err := c.GenerateKey(context.Background(), "alice", 128)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if !key.KeyAvailable || key.KeyLength != 128 {
		t.Errorf("unexpected key: %+v", key)
	}
}

func TestGenerateKey_RejectsBadLengthLocally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request issued for an invalid key length")
	}))
	defer server.Close()

	c := New(server.URL)

	if _, err := c.GenerateKey(context.Background(), "alice", 100); err == nil {
		t.Fatal("expected error for a 100-bit key length")
	}
}

func TestUserKey_EscapesUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/messaging/keys/team%2Falice" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}

		json.NewEncoder(w).Encode(QuantumKey{
			UserID:       "team/alice",
			KeyAvailable: false,
			Message:      "No valid quantum key found. Generate one first.",
		})
	}))
	defer server.Close()

	c := New(server.URL)

	key, err := c.UserKey(context.Background(), "team/alice")
	if err != nil {
		t.Fatalf("UserKey failed: %v", err)
	}

	if key.KeyAvailable {
		t.Errorf("expected no key available, got %+v", key)
	}
}

func TestRefreshKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messaging/keys/bob/refresh" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		if got := r.URL.Query().Get("key_length"); got != "192" {
			t.Errorf("expected key_length=192, got %q", got)
		}

		json.NewEncoder(w).Encode(QuantumKey{UserID: "bob", KeyLength: 192, KeyAvailable: true})
	}))
	defer server.Close()

	c := New(server.URL)

	key, err := c.RefreshKey(context.Background(), "bob", 192)
	if err != nil {
		t.Fatalf("RefreshKey failed: %v", err)
	}

	if key.KeyLength != 192 {
		t.Errorf("unexpected key length %d", key.KeyLength)
	}
}

func TestGenerateSharedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messaging/keys/shared/generate" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req SharedKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		if req.User1ID != "alice" || req.User2ID != "bob" {
			t.Errorf("unexpected pair: %+v", req)
		}

		json.NewEncoder(w).Encode(SharedKeyResult{
			Success:      true,
			User1ID:      req.User1ID,
			User2ID:      req.User2ID,
			KeyLength:    256,
			KeyAvailable: true,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	result, err := c.GenerateSharedKey(context.Background(), SharedKeyRequest{
		User1ID: "alice", User2ID: "bob", KeyLength: 256,
	})
	if err != nil {
		t.Fatalf("GenerateSharedKey failed: %v", err)
	}

	if !result.Success || result.KeyLength != 256 {
		t.Errorf("unexpected shared key result: %+v", result)
	}
}

func TestKeyStatistics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messaging/keys/statistics" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		json.NewEncoder(w).Encode(KeyStatistics{
			TotalUsers:    4,
			ActiveKeys:    3,
			ExpiredKeys:   1,
			KeyExpiryTime: 3600,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	stats, err := c.KeyStatistics(context.Background())
	if err != nil {
		t.Fatalf("KeyStatistics failed: %v", err)
	}

	if stats.TotalUsers != 4 || stats.ActiveKeys != 3 {
		t.Errorf("unexpected statistics: %+v", stats)
	}
}

func TestSendThenReceiveMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/messaging/send":
			var req SendMessageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("failed to decode send request: %v", err)
			}

			if req.SenderID != "alice" || req.ReceiverID != "bob" {
				t.Errorf("unexpected send request: %+v", req)
			}

			json.NewEncoder(w).Encode(SendMessageResult{
				Success:          true,
				MessageID:        "msg_1700000000_1",
				Status:           "sent",
				EncryptedMessage: "3q2+7w==",
			})
		case "/messaging/receive":
			var req ReceiveMessageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("failed to decode receive request: %v", err)
			}

			if req.ReceiverID != "bob" || req.MessageID != "msg_1700000000_1" {
				t.Errorf("unexpected receive request: %+v", req)
			}

			json.NewEncoder(w).Encode(ReceiveMessageResult{
				Success:          true,
				MessageID:        req.MessageID,
				SenderID:         "alice",
				DecryptedMessage: "rendezvous at noon",
				Status:           "delivered",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := New(server.URL)

	sent, err := c.SendMessage(context.Background(), SendMessageRequest{
		SenderID:   "alice",
		ReceiverID: "bob",
		Message:    "rendezvous at noon",
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if sent.MessageID == "" || sent.Status != "sent" {
		t.Errorf("unexpected send result: %+v", sent)
	}

	received, err := c.ReceiveMessage(context.Background(), ReceiveMessageRequest{
		ReceiverID: "bob",
		MessageID:  sent.MessageID,
	})
	if err != nil {
		t.Fatalf("ReceiveMessage failed: %v", err)
	}

	if received.DecryptedMessage != "rendezvous at noon" {
		t.Errorf("unexpected plaintext %q", received.DecryptedMessage)
	}
}
