// Package realtime maintains the push channel: one websocket connection
// keyed by the current access credential, with keepalive, bounded
// reconnection, and typed message fan-out to subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
	"github.com/sirnukesalot/taskdesk-go/audit"
	"github.com/sirnukesalot/taskdesk-go/metrics"
)

// Defaults for the reconnect policy.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 2 * time.Second
)

// subscriber channel buffer. A subscriber that falls this far behind loses
// messages rather than stalling the read loop.
const subscriberBuffer = 16

// TokenSource supplies the connection credential. The channel reads it
// fresh on every (re)connect so a refreshed credential is picked up.
type TokenSource interface {
	AccessToken() string
}

// Channel is the push connection. The zero value is not usable; construct
// with New.
//
// Lifecycle: Disconnected → Connecting → Open, back to Disconnected on any
// transport close or error. Each unexpected close schedules one reconnect
// after attempt × base delay, up to the attempt budget; a successful open
// resets the budget. Disconnect zeroes the budget for good.
type Channel struct {
	wsBaseURL string
	tokens    TokenSource
	logger    *slog.Logger
	metrics   *metrics.Metrics
	audit     *audit.Logger
	dialer    *websocket.Dialer
	baseDelay time.Duration

	mu          sync.Mutex
	conn        *websocket.Conn
	dialing     bool
	attempts    int
	maxAttempts int
	subs        map[int]chan taskdesk.RealtimeMessage
	nextSub     int
}

// compile-time check
var _ taskdesk.RealtimeService = (*Channel)(nil)

// Option configures the Channel.
type Option func(*Channel)

// WithLogger sets a structured logger for the channel.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l.With("component", "realtime") }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithAudit sets the audit logger for connection transitions.
func WithAudit(a *audit.Logger) Option {
	return func(c *Channel) { c.audit = a }
}

// WithBaseDelay sets the reconnect base delay (attempt × delay).
func WithBaseDelay(d time.Duration) Option {
	return func(c *Channel) { c.baseDelay = d }
}

// WithMaxAttempts sets the reconnect attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Channel) { c.maxAttempts = n }
}

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// New creates a push channel against wsBaseURL (e.g. "wss://host/ws").
func New(wsBaseURL string, tokens TokenSource, opts ...Option) *Channel {
	c := &Channel{
		wsBaseURL:   wsBaseURL,
		tokens:      tokens,
		logger:      slog.Default(),
		metrics:     metrics.New(false),
		dialer:      websocket.DefaultDialer,
		baseDelay:   DefaultBaseDelay,
		maxAttempts: DefaultMaxAttempts,
		subs:        make(map[int]chan taskdesk.RealtimeMessage),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect opens the push connection. No-op when no credential is current, a
// connection is already open, or a dial is in flight — the session holds at
// most one push connection. A dial failure counts as an unexpected close and
// consumes one reconnect attempt.
func (c *Channel) Connect(ctx context.Context) {
	tok := c.tokens.AccessToken()
	if tok == "" {
		return
	}

	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return
	}
	c.dialing = true
	c.mu.Unlock()

	url := c.wsBaseURL + "/kanban/?token=" + tok
	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.dialing = false
		c.mu.Unlock()
		c.logger.Warn("push connection failed", "err", err)
		c.handleClose()
		return
	}

	c.mu.Lock()
	c.dialing = false
	if c.conn != nil {
		// Lost the race to another successful dial; one connection per
		// session, so the newcomer is discarded.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.metrics.SetConnected(true)
	c.audit.Log(audit.Event{Action: audit.ActionConnect, Result: audit.ResultSuccess})
	go c.readLoop(conn)
}

// readLoop parses inbound frames and fans them out until the transport
// closes. Malformed frames are dropped without surfacing an error; pings
// are answered and never forwarded.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Transport errors are treated as closure, never as fatal.
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			c.metrics.SetConnected(false)
			c.handleClose()
			return
		}

		var msg taskdesk.RealtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.metrics.RecordDroppedFrame()
			continue
		}
		c.metrics.RecordFrame(msg.Type)

		if msg.Type == taskdesk.MsgPing {
			c.Send(taskdesk.RealtimeMessage{Type: taskdesk.MsgPong})
			continue
		}

		c.publish(msg)
	}
}

// publish fans a message out to all subscribers. A full subscriber loses
// the message; the read loop never blocks on a consumer.
func (c *Channel) publish(msg taskdesk.RealtimeMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- msg:
		default:
			c.logger.Warn("dropping push message for slow subscriber", "type", msg.Type)
		}
	}
}

// handleClose schedules one reconnect if the attempt budget allows.
func (c *Channel) handleClose() {
	c.mu.Lock()
	if c.attempts >= c.maxAttempts {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	c.metrics.RecordReconnect()
	c.audit.Log(audit.Event{Action: audit.ActionReconnect, Result: audit.ResultFailure, Details: "scheduling reconnect"})
	delay := time.Duration(attempt) * c.baseDelay
	time.AfterFunc(delay, func() {
		c.mu.Lock()
		disabled := c.maxAttempts == 0
		c.mu.Unlock()
		if disabled {
			return
		}
		c.Connect(context.Background())
	})
}

// Subscribe returns a stream of inbound messages and a cancel func that
// severs it. Keepalive frames never appear on the stream.
func (c *Channel) Subscribe() (<-chan taskdesk.RealtimeMessage, func()) {
	ch := make(chan taskdesk.RealtimeMessage, subscriberBuffer)

	c.mu.Lock()
	idx := c.nextSub
	c.nextSub++
	c.subs[idx] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subs[idx]; ok {
			delete(c.subs, idx)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Send serializes and transmits a message if the transport is open, and
// silently drops it otherwise. Callers must not depend on delivery.
func (c *Channel) Send(msg taskdesk.RealtimeMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("push send failed", "type", msg.Type, "err", err)
	}
}

// SubscribeToClient asks the server to push only updates scoped to the
// given client. The filter is enforced server-side.
func (c *Channel) SubscribeToClient(clientID int64) {
	payload, _ := json.Marshal(taskdesk.SubscribeFilterPayload{ClientID: clientID})
	c.Send(taskdesk.RealtimeMessage{Type: taskdesk.MsgSubscribeFilter, Payload: payload})
}

// RemoveFilter clears a previously requested client scope.
func (c *Channel) RemoveFilter() {
	c.Send(taskdesk.RealtimeMessage{Type: taskdesk.MsgRemoveFilter})
}

// Disconnect zeroes the reconnect budget and closes the transport.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.maxAttempts = 0
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.metrics.SetConnected(false)
	c.audit.Log(audit.Event{Action: audit.ActionDisconnect, Result: audit.ResultSuccess})
}
