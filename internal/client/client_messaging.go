package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Key lengths the messaging service accepts, in bits.
var validKeyLengths = map[int]bool{128: true, 192: true, 256: true}

// QuantumKey describes a per-user key held by the messaging service.
// KeyAvailable is false when no unexpired key exists for the user.
type QuantumKey struct {
	UserID          string         `json:"user_id"`
	KeyLength       int            `json:"key_length"`
	KeyAvailable    bool           `json:"key_available"`
	ExpiresAt       float64        `json:"expires_at,omitempty"`
	SecurityMetrics map[string]any `json:"security_metrics,omitempty"`
	Message         string         `json:"message,omitempty"`
}

// SharedKeyRequest pairs two users on one quantum key.
type SharedKeyRequest struct {
	User1ID   string `json:"user1_id"`
	User2ID   string `json:"user2_id"`
	KeyLength int    `json:"key_length,omitempty"`
}

// SharedKeyResult reports a shared key established between two users.
type SharedKeyResult struct {
	Success         bool           `json:"success"`
	User1ID         string         `json:"user1_id"`
	User2ID         string         `json:"user2_id"`
	KeyLength       int            `json:"key_length"`
	KeyAvailable    bool           `json:"key_available"`
	ExpiresAt       float64        `json:"expires_at"`
	SecurityMetrics map[string]any `json:"security_metrics,omitempty"`
	Message         string         `json:"message,omitempty"`
}

// KeyStatistics aggregates the key store's counters.
type KeyStatistics struct {
	TotalUsers    int     `json:"total_users"`
	ActiveKeys    int     `json:"active_keys"`
	ExpiredKeys   int     `json:"expired_keys"`
	KeyExpiryTime float64 `json:"key_expiry_time"`
}

// SendMessageRequest encrypts a message under the sender's quantum key.
type SendMessageRequest struct {
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Message        string `json:"message"`
	EncryptionMode string `json:"encryption_mode,omitempty"`
	KeyLength      int    `json:"key_length,omitempty"`
}

// SendMessageResult reports the stored ciphertext's id and metadata.
type SendMessageResult struct {
	Success          bool           `json:"success"`
	MessageID        string         `json:"message_id"`
	Status           string         `json:"status"`
	EncryptedMessage string         `json:"encrypted_message"`
	SecurityMetrics  map[string]any `json:"security_metrics,omitempty"`
	Timestamp        float64        `json:"timestamp"`
	KeyInfo          map[string]any `json:"key_info,omitempty"`
}

// ReceiveMessageRequest addresses a stored message for decryption.
type ReceiveMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	MessageID  string `json:"message_id"`
}

// ReceiveMessageResult carries the decrypted plaintext.
type ReceiveMessageResult struct {
	Success          bool           `json:"success"`
	MessageID        string         `json:"message_id"`
	SenderID         string         `json:"sender_id"`
	DecryptedMessage string         `json:"decrypted_message"`
	Timestamp        float64        `json:"timestamp"`
	Status           string         `json:"status"`
	SecurityMetrics  map[string]any `json:"security_metrics,omitempty"`
}

func checkKeyLength(bits int) error {
	if bits != 0 && !validKeyLengths[bits] {
		return fmt.Errorf("key length must be 128, 192, or 256 bits, got %d", bits)
	}

	return nil
}

// GenerateKey derives a fresh quantum key for the user from a BB84 run.
func (c *Client) GenerateKey(ctx context.Context, userID string, keyLength int) (*QuantumKey, error) {
	if err := checkKeyLength(keyLength); err != nil {
		return nil, err
	}

	q := url.Values{"user_id": {userID}}
	if keyLength != 0 {
		q.Set("key_length", fmt.Sprint(keyLength))
	}

	var resp QuantumKey
	if err := c.doJSON(ctx, http.MethodGet, "/messaging/keys/generate?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// GenerateSharedKey establishes one key shared by both users.
func (c *Client) GenerateSharedKey(ctx context.Context, req SharedKeyRequest) (*SharedKeyResult, error) {
	if err := checkKeyLength(req.KeyLength); err != nil {
		return nil, err
	}

	var resp SharedKeyResult
	if err := c.doJSON(ctx, http.MethodPost, "/messaging/keys/shared/generate", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// UserKey fetches the user's current key metadata. KeyAvailable is
// false when the key has expired or was never generated.
func (c *Client) UserKey(ctx context.Context, userID string) (*QuantumKey, error) {
	var resp QuantumKey
	if err := c.doJSON(ctx, http.MethodGet, "/messaging/keys/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// RefreshKey discards the user's current key and derives a new one.
func (c *Client) RefreshKey(ctx context.Context, userID string, keyLength int) (*QuantumKey, error) {
	if err := checkKeyLength(keyLength); err != nil {
		return nil, err
	}

	path := "/messaging/keys/" + url.PathEscape(userID) + "/refresh"
	if keyLength != 0 {
		path += "?key_length=" + fmt.Sprint(keyLength)
	}

	var resp QuantumKey
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// KeyStatistics fetches the key store's aggregate counters.
func (c *Client) KeyStatistics(ctx context.Context) (*KeyStatistics, error) {
	var resp KeyStatistics
	if err := c.doJSON(ctx, http.MethodGet, "/messaging/keys/statistics", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// SendMessage encrypts and stores a message for the receiver. Missing
// keys are generated server-side before encryption.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	if err := checkKeyLength(req.KeyLength); err != nil {
		return nil, err
	}

	var resp SendMessageResult
	if err := c.doJSON(ctx, http.MethodPost, "/messaging/send", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// ReceiveMessage decrypts a stored message addressed to the receiver.
func (c *Client) ReceiveMessage(ctx context.Context, req ReceiveMessageRequest) (*ReceiveMessageResult, error) {
	var resp ReceiveMessageResult
	if err := c.doJSON(ctx, http.MethodPost, "/messaging/receive", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}
