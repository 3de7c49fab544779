package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/QKD-VITAP/qkdctl/internal/clock"
	"github.com/QKD-VITAP/qkdctl/internal/notify"
)

type fakeConn struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.frames:
		return 1, data, nil
	case <-f.done:
		return 0, nil, fmt.Errorf("connection closed")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.done:
		return fmt.Errorf("connection closed")
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes = append(f.writes, data)

	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.done) })

	return nil
}

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.writes)
}

// fakeDialer scripts dial outcomes: each Dial consumes one entry from
// outcomes (true = succeed). An exhausted script keeps failing.
type fakeDialer struct {
	mu       sync.Mutex
	outcomes []bool
	conns    []*fakeConn
	headers  []http.Header
	dials    int
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.headers = append(d.headers, header.Clone())

	ok := false
	if len(d.outcomes) > 0 {
		ok = d.outcomes[0]
		d.outcomes = d.outcomes[1:]
	}

	if !ok {
		return nil, fmt.Errorf("dial refused")
	}

	conn := newFakeConn()
	d.conns = append(d.conns, conn)

	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.conns[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(2 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

func frame(t *testing.T, msg Message) []byte {
	t.Helper()

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal frame: %v", err)
	}

	return data
}

func TestLatest_LastWriteWins(t *testing.T) {
	dialer := &fakeDialer{outcomes: []bool{true}}
	c := New("ws://test/ws", WithDialer(dialer), WithClock(clock.NewFake()))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	conn := dialer.conn(0)
	conn.frames <- frame(t, Message{
		Type:   TypeSimulationComplete,
		Result: map[string]any{"qber": 0.021, "final_key_length": 512.0},
	})
	conn.frames <- frame(t, Message{
		Type:   TypeSimulationComplete,
		Result: map[string]any{"qber": 0.045, "final_key_length": 256.0},
	})

	waitFor(t, "both frames to arrive", func() bool {
		_, seq, _ := c.Latest()
		return seq == 2
	})

	msg, seq, ok := c.Latest()
	if !ok || seq != 2 {
		t.Fatalf("expected seq 2, got seq=%d ok=%v", seq, ok)
	}

	if msg.Result["qber"] != 0.045 {
		t.Errorf("slot holds the older message: %v", msg.Result)
	}
}

func TestReconnect_BackoffSequenceAndGiveUp(t *testing.T) {
	clk := clock.NewFake()
	hub := notify.NewHub(clk)
	dialer := &fakeDialer{outcomes: []bool{true}} // initial dial only
	c := New("ws://test/ws", WithDialer(dialer), WithClock(clk), WithNotifications(hub))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	dialer.conn(0).Close()

	waitFor(t, "first reconnect to be scheduled", func() bool {
		s := c.Status()
		return s.State == StateReconnecting && s.Attempt == 1
	})

	// Delay before retry k is 2^(k-1) seconds; each retry fails and
	// schedules the next.
	delays := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 16 * time.Second,
	}

	for k, delay := range delays {
		clk.Advance(delay - time.Millisecond)

		if got := dialer.dialCount(); got != 1+k {
			t.Fatalf("retry %d fired before its delay: %d dials", k+1, got)
		}

		clk.Advance(time.Millisecond)

		if got := dialer.dialCount(); got != 2+k {
			t.Fatalf("retry %d did not fire at its delay: %d dials", k+1, got)
		}
	}

	if s := c.Status(); s.State != StateDisconnected {
		t.Errorf("expected disconnected after exhausting retries, got %+v", s)
	}

	var errCount int

	for _, e := range hub.Entries() {
		if e.Severity == notify.Error {
			errCount++
		}
	}

	if errCount != 1 {
		t.Errorf("expected exactly one error notification, got %d", errCount)
	}

	// No further automatic attempts.
	clk.Advance(5 * time.Minute)

	if got := dialer.dialCount(); got != 6 {
		t.Errorf("expected no dials after give-up, got %d total", got)
	}
}

func TestReconnect_SuccessResetsAttempt(t *testing.T) {
	clk := clock.NewFake()
	hub := notify.NewHub(clk)
	dialer := &fakeDialer{outcomes: []bool{true, true}}
	c := New("ws://test/ws", WithDialer(dialer), WithClock(clk), WithNotifications(hub))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	dialer.conn(0).Close()

	waitFor(t, "reconnect to be scheduled", func() bool {
		return c.Status().State == StateReconnecting
	})

	clk.Advance(time.Second)

	s := c.Status()
	if s.State != StateConnected || s.Attempt != 0 {
		t.Fatalf("expected connected with attempt reset, got %+v", s)
	}

	var successes int

	for _, e := range hub.Entries() {
		if e.Severity == notify.Success {
			successes++

			if e.Duration != 2*time.Second {
				t.Errorf("expected 2s success notification, got %v", e.Duration)
			}
		}
	}

	if successes != 2 { // initial connect and recovery
		t.Errorf("expected 2 success notifications, got %d", successes)
	}
}

func TestSend_DropsUnlessConnected(t *testing.T) {
	dialer := &fakeDialer{outcomes: []bool{true}}
	c := New("ws://test/ws", WithDialer(dialer), WithClock(clock.NewFake()))
	defer c.Disconnect()

	if err := c.Send(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("Send before connect should drop silently, got %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := c.Send(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("Send while connected failed: %v", err)
	}

	if got := dialer.conn(0).writeCount(); got != 1 {
		t.Errorf("expected exactly one transmitted message, got %d", got)
	}
}

func TestDisconnect_CancelsPendingRetry(t *testing.T) {
	clk := clock.NewFake()
	dialer := &fakeDialer{outcomes: []bool{true}}
	c := New("ws://test/ws", WithDialer(dialer), WithClock(clk))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	dialer.conn(0).Close()

	waitFor(t, "reconnect to be scheduled", func() bool {
		return c.Status().State == StateReconnecting
	})

	c.Disconnect()

	if got := clk.PendingCount(); got != 0 {
		t.Errorf("expected all timers released at teardown, got %d pending", got)
	}

	clk.Advance(time.Hour)

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("expected no dials after Disconnect, got %d", got)
	}

	if s := c.Status(); s.State != StateDisconnected {
		t.Errorf("expected disconnected, got %+v", s)
	}
}

func TestInbound_ParseFailureDropped(t *testing.T) {
	dialer := &fakeDialer{outcomes: []bool{true}}
	c := New("ws://test/ws", WithDialer(dialer), WithClock(clock.NewFake()))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	conn := dialer.conn(0)
	conn.frames <- []byte("{not json")
	conn.frames <- frame(t, Message{Type: TypeSimulationUpdate, SimulationID: "sim-1", Progress: 10})

	waitFor(t, "valid frame to arrive", func() bool {
		_, seq, _ := c.Latest()
		return seq == 1
	})

	msg, _, _ := c.Latest()
	if msg.Type != TypeSimulationUpdate || msg.SimulationID != "sim-1" {
		t.Errorf("unexpected slot contents: %+v", msg)
	}

	if s := c.Status(); s.State != StateConnected {
		t.Errorf("parse failure must not affect the connection, got %+v", s)
	}
}

func TestConnect_NoopWhileConnected(t *testing.T) {
	dialer := &fakeDialer{outcomes: []bool{true, true}}
	c := New("ws://test/ws", WithDialer(dialer), WithClock(clock.NewFake()))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("expected a single dial, got %d", got)
	}
}

type tokenAttacher struct{ token string }

func (a tokenAttacher) Attach(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.token)
}

func TestDial_AttachesCurrentCredential(t *testing.T) {
	dialer := &fakeDialer{outcomes: []bool{true}}
	c := New("ws://test/ws", WithDialer(dialer),
		WithClock(clock.NewFake()), WithAuthorizer(tokenAttacher{token: "tok-9"}))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := dialer.headers[0].Get("Authorization"); got != "Bearer tok-9" {
		t.Errorf("expected bearer header on handshake, got %q", got)
	}
}
