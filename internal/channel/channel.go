// Package channel maintains the push connection to the simulation
// platform's websocket feed.
//
// The client owns one logical connection, recovers from drops with
// exponential backoff, and exposes the most recent inbound message.
// Messages are at-most-one-current-value: a new arrival overwrites the
// previous one whether or not anyone read it.
package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/QKD-VITAP/qkdctl/internal/client"
	"github.com/QKD-VITAP/qkdctl/internal/clock"
	"github.com/QKD-VITAP/qkdctl/internal/notify"
)

const (
	// maxReconnectAttempts bounds automatic recovery. After this many
	// consecutive failures the client stays disconnected until an
	// explicit Connect.
	maxReconnectAttempts = 5
	// reconnectBase is the unit for the exponential backoff delay.
	reconnectBase = time.Second

	// writeWait is the deadline for one outbound frame.
	writeWait = 10 * time.Second
	// pongWait is how long a silent peer is tolerated.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so the peer has time
	// to answer.
	pingPeriod = (pongWait * 9) / 10
)

// State is the connection lifecycle position.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Status pairs the connection state with the current retry attempt.
// Attempt is meaningful only while reconnecting.
type Status struct {
	State   State
	Attempt int
}

// Inbound message discriminators used by the platform feed.
const (
	TypeSimulationUpdate   = "simulation_update"
	TypeSimulationComplete = "simulation_complete"
	TypeSimulationError    = "simulation_error"
	TypePong               = "pong"
)

// Message is one parsed inbound frame.
type Message struct {
	Type         string         `json:"type"`
	SimulationID string         `json:"simulation_id,omitempty"`
	Status       string         `json:"status,omitempty"`
	Progress     int            `json:"progress,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

// Event is a coalesced snapshot delivered to subscribers whenever the
// connection state or the inbound slot changes.
type Event struct {
	Status Status
	Seq    uint64
	Latest *Message
}

// Conn is the subset of the websocket connection the client uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Dialer opens one connection to the feed endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Client is the push-channel client.
type Client struct {
	url        string
	dialer     Dialer
	clk        clock.Clock
	hub        *notify.Hub
	authorizer client.Authorizer
	logger     *slog.Logger

	mu         sync.Mutex
	generation int
	state      State
	attempt    int
	conn       Conn
	retryTimer clock.Timer
	pingTimer  clock.Timer
	seq        uint64
	latest     *Message
	subs       map[int]chan Event
	nextSub    int
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer (used in tests).
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithClock replaces the timer source (used in tests).
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clk = clk }
}

// WithNotifications routes connect and give-up events to a hub.
func WithNotifications(hub *notify.Hub) Option {
	return func(c *Client) { c.hub = hub }
}

// WithAuthorizer injects the current credential into the connection
// handshake. The credential is re-read on every dial.
func WithAuthorizer(a client.Authorizer) Option {
	return func(c *Client) { c.authorizer = a }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the given websocket URL. The connection is
// not opened until Connect.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		dialer: wsDialer{},
		clk:    clock.System(),
		logger: slog.Default(),
		state:  StateDisconnected,
		subs:   make(map[int]chan Event),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect opens the channel. It is a no-op when already connected or
// connecting. An explicit Connect also restarts a client that gave up
// after exhausting its reconnection attempts.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()

	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}

	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}

	c.attempt = 0
	c.state = StateConnecting
	gen := c.generation
	c.publishLocked()
	c.mu.Unlock()

	conn, err := c.dial(ctx)

	c.mu.Lock()

	if c.generation != gen {
		c.mu.Unlock()

		if conn != nil {
			conn.Close()
		}

		return nil
	}

	if err != nil {
		c.state = StateDisconnected
		c.publishLocked()
		c.mu.Unlock()

		return err
	}

	c.becomeConnectedLocked(conn)
	c.mu.Unlock()

	c.notifyConnected()
	go c.readLoop(gen, conn)

	return nil
}

// Disconnect closes the channel and cancels any pending reconnection
// timer before returning. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++

	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}

	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.state != StateDisconnected {
		c.state = StateDisconnected
		c.attempt = 0
		c.publishLocked()
	}
}

// Send serializes and transmits v when connected. When not connected
// the message is silently dropped; the caller owns any resubmission
// semantics.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Debug("dropping outbound message, channel not connected")
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(c.clk.Now().Add(writeWait))

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read loop observes the closure and drives recovery.
		c.logger.Debug("websocket write failed", "error", err)
		return err
	}

	return nil
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{State: c.state, Attempt: c.attempt}
}

// Latest returns the most recent inbound message, its arrival number,
// and whether any message has arrived yet.
func (c *Client) Latest() (Message, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latest == nil {
		return Message{}, 0, false
	}

	return *c.latest, c.seq, true
}

// Updates returns a coalescing subscription: a slow consumer sees the
// newest snapshot, not a backlog. The cancel func releases the
// subscription and closes the channel.
func (c *Client) Updates() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++

	ch := make(chan Event, 1)
	c.subs[id] = ch
	ch <- c.eventLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	header := http.Header{}

	if c.authorizer != nil {
		req := &http.Request{Header: header}
		c.authorizer.Attach(req)
	}

	return c.dialer.Dial(ctx, c.url, header)
}

// becomeConnectedLocked installs a fresh connection and arms keepalive.
func (c *Client) becomeConnectedLocked(conn Conn) {
	c.conn = conn
	c.state = StateConnected
	c.attempt = 0

	conn.SetReadDeadline(c.clk.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(c.clk.Now().Add(pongWait))
	})

	c.schedulePingLocked(c.generation, conn)
	c.publishLocked()
}

func (c *Client) schedulePingLocked(gen int, conn Conn) {
	c.pingTimer = c.clk.AfterFunc(pingPeriod, func() {
		c.mu.Lock()

		if c.generation != gen || c.conn != conn {
			c.mu.Unlock()
			return
		}

		c.schedulePingLocked(gen, conn)
		c.mu.Unlock()

		conn.SetWriteDeadline(c.clk.Now().Add(writeWait))

		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			conn.Close()
		}
	})
}

// readLoop consumes inbound frames until the connection closes, then
// hands off to the reconnection policy.
func (c *Client) readLoop(gen int, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosure(gen, conn, err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			// Malformed frames are dropped, never treated as a
			// connection failure.
			c.logger.Debug("dropping unparseable frame")
			continue
		}

		if msg.Type == TypePong {
			continue
		}

		c.mu.Lock()

		if c.generation != gen {
			c.mu.Unlock()
			return
		}

		c.seq++
		c.latest = &msg
		c.publishLocked()
		c.mu.Unlock()
	}
}

// handleClosure runs the reconnection policy after an unexpected
// closure. The delay before retry k is 2^(k-1) seconds; after
// maxReconnectAttempts consecutive failures the client gives up.
func (c *Client) handleClosure(gen int, conn Conn, cause error) {
	conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen || c.conn != conn {
		// Teardown or a newer connection already took over.
		return
	}

	c.conn = nil

	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}

	c.logger.Debug("websocket closed", "error", cause)
	c.scheduleReconnectLocked(gen)
}

func (c *Client) scheduleReconnectLocked(gen int) {
	if c.attempt >= maxReconnectAttempts {
		c.state = StateDisconnected
		c.publishLocked()
		c.notifyGaveUp()

		return
	}

	delay := time.Duration(1<<c.attempt) * reconnectBase
	c.attempt++
	c.state = StateReconnecting
	c.publishLocked()

	c.retryTimer = c.clk.AfterFunc(delay, func() {
		c.redial(gen)
	})
}

// redial runs one scheduled reconnection attempt.
func (c *Client) redial(gen int) {
	c.mu.Lock()

	if c.generation != gen {
		c.mu.Unlock()
		return
	}

	c.retryTimer = nil
	c.state = StateConnecting
	c.publishLocked()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	conn, err := c.dial(ctx)

	cancel()

	c.mu.Lock()

	if c.generation != gen {
		c.mu.Unlock()

		if conn != nil {
			conn.Close()
		}

		return
	}

	if err != nil {
		c.logger.Debug("reconnect attempt failed", "attempt", c.attempt, "error", err)
		c.scheduleReconnectLocked(gen)
		c.mu.Unlock()

		return
	}

	c.becomeConnectedLocked(conn)
	c.mu.Unlock()

	c.notifyConnected()
	go c.readLoop(gen, conn)
}

func (c *Client) notifyConnected() {
	if c.hub != nil {
		c.hub.Push("connected to simulation feed", notify.Success,
			notify.WithDuration(2*time.Second))
	}
}

func (c *Client) notifyGaveUp() {
	if c.hub != nil {
		c.hub.Push("lost connection to simulation feed", notify.Error)
	}
}

func (c *Client) eventLocked() Event {
	ev := Event{
		Status: Status{State: c.state, Attempt: c.attempt},
		Seq:    c.seq,
	}

	if c.latest != nil {
		msg := *c.latest
		ev.Latest = &msg
	}

	return ev
}

// publishLocked pushes the current snapshot to every subscriber,
// replacing any unconsumed one.
func (c *Client) publishLocked() {
	ev := c.eventLocked()

	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			select {
			case <-sub:
			default:
			}

			select {
			case sub <- ev:
			default:
			}
		}
	}
}
