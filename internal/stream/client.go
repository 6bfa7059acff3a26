package stream

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/technosupport/ts-dispatch/internal/alerts"
	"github.com/technosupport/ts-dispatch/internal/backoff"
	"github.com/technosupport/ts-dispatch/internal/metrics"
)

// Status of the push channel, as surfaced on the dashboard header.
type Status string

const (
	StatusConnecting   Status = "Connecting"
	StatusConnected    Status = "Connected"
	StatusDisconnected Status = "Disconnected"
	StatusError        Status = "Error"
)

const (
	reconnectBase = 2 * time.Second
	reconnectCap  = 30 * time.Second
)

// Callbacks receive typed events and status changes. Both are invoked from
// the client's goroutines; handlers must not block for long.
type Callbacks struct {
	OnEvent  func(alerts.Event)
	OnStatus func(Status)
}

// Source is a push-channel event source. The websocket Client is the
// primary transport; NATSSource is the co-located bus variant.
type Source interface {
	Connect() error
	Close() error
}

// Client owns one websocket push channel to the dispatch backend. It
// reconnects on any closure with capped exponential back-off and keeps at
// most one reconnect timer pending.
type Client struct {
	url    string
	token  string
	dialer *websocket.Dialer
	cb     Callbacks
	delay  backoff.DelayFunc
	timer  *backoff.Timer

	mu      sync.Mutex
	conn    *websocket.Conn
	attempt int
	closed  bool
	status  Status

	wg sync.WaitGroup
}

func NewClient(wsURL, token string, cb Callbacks) *Client {
	return &Client{
		url:    wsURL,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		cb:     cb,
		delay:  backoff.Exponential(reconnectBase, reconnectCap),
		timer:  backoff.NewTimer(),
		status: StatusDisconnected,
	}
}

// Connect starts the first dial. Non-blocking; progress is reported via
// OnStatus.
func (c *Client) Connect() error {
	c.wg.Add(1)
	go c.dial()
	return nil
}

// Status returns the last reported channel state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close tears the channel down and suppresses further reconnects. Safe to
// call from any connection state, including mid-reconnect-wait.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.timer.Stop()
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *Client) dial() {
	defer c.wg.Done()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	attempt := c.attempt
	c.mu.Unlock()

	c.setStatus(StatusConnecting)
	log.Printf("[Stream] Connecting (attempt %d)...", attempt+1)

	conn, _, err := c.dialer.Dial(c.url+"?token="+c.token, nil)
	if err != nil {
		log.Printf("[Stream] Dial failed: %v", err)
		c.setStatus(StatusError)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempt = 0 // successful open resets the back-off ladder
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	log.Printf("[Stream] Connected")
	metrics.StreamConnectsTotal.Inc()

	c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			conn.Close()
			if closed {
				return
			}
			log.Printf("[Stream] Connection closed: %v", err)
			c.setStatus(StatusDisconnected)
			c.scheduleReconnect()
			return
		}

		ev, err := DecodeEnvelope(msg)
		if err != nil {
			// Malformed or unknown payloads are dropped, never fatal.
			log.Printf("[Stream] Dropping message: %v", err)
			metrics.StreamDroppedTotal.Inc()
			continue
		}
		metrics.AlertEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
		if c.cb.OnEvent != nil {
			c.cb.OnEvent(ev)
		}
	}
}

// scheduleReconnect arms the single reconnect slot. Delay follows
// min(30s, 2^attempt * 2s).
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	d := c.delay(c.attempt)
	c.attempt++
	c.mu.Unlock()

	log.Printf("[Stream] Reconnecting in %s", d)
	metrics.StreamReconnectsTotal.Inc()
	c.timer.Schedule(d, func() {
		c.wg.Add(1)
		c.dial()
	})
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.closed && s != StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()
	if c.cb.OnStatus != nil {
		c.cb.OnStatus(s)
	}
}
