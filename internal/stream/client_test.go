package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-dispatch/internal/alerts"
	"github.com/technosupport/ts-dispatch/internal/backoff"
)

func TestDecodeEnvelope(t *testing.T) {
	ev, err := DecodeEnvelope([]byte(`{"type":"new_alert","alert":{"id":"a1","siteId":"s1","status":"New"}}`))
	require.NoError(t, err)
	assert.Equal(t, alerts.EventCreated, ev.Kind)
	assert.Equal(t, "a1", ev.Alert.ID)
	assert.Equal(t, alerts.PlaceholderSnapshotURL, ev.Alert.Media.SnapshotURL)

	ev, err = DecodeEnvelope([]byte(`{"type":"update_alert","alert":{"id":"a1","status":"Resolved"}}`))
	require.NoError(t, err)
	assert.Equal(t, alerts.EventUpdated, ev.Kind)
	assert.Equal(t, alerts.StatusResolved, ev.Alert.Status)

	_, err = DecodeEnvelope([]byte(`{"type":"heartbeat"}`))
	assert.Error(t, err, "unknown kinds are dropped")

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"type":"new_alert","alert":{"siteId":"s1"}}`))
	assert.Error(t, err, "alert without id is malformed")
}

// wsTestServer accepts push-channel connections and hands each one to fn.
type wsTestServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  []*websocket.Conn
	tokens []string
}

func newWsTestServer(t *testing.T) *wsTestServer {
	ws := &wsTestServer{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.mu.Lock()
		ws.conns = append(ws.conns, conn)
		ws.tokens = append(ws.tokens, r.URL.Query().Get("token"))
		ws.mu.Unlock()
		// Keep the read side alive so the connection stays open.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsTestServer) waitConn(t *testing.T, n int) *websocket.Conn {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ws.mu.Lock()
		if len(ws.conns) >= n {
			c := ws.conns[n-1]
			ws.mu.Unlock()
			return c
		}
		ws.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection %d never arrived", n)
	return nil
}

type recorder struct {
	mu       sync.Mutex
	events   []alerts.Event
	statuses []Status
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnEvent: func(ev alerts.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		},
		OnStatus: func(s Status) {
			r.mu.Lock()
			r.statuses = append(r.statuses, s)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) sawStatus(s Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.statuses {
		if got == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestClient_DeliversTypedEvents(t *testing.T) {
	ws := newWsTestServer(t)
	rec := &recorder{}

	c := NewClient(ws.url(), "tok-123", rec.callbacks())
	require.NoError(t, c.Connect())
	defer c.Close()

	conn := ws.waitConn(t, 1)
	waitFor(t, func() bool { return c.Status() == StatusConnected }, "never connected")

	ws.mu.Lock()
	assert.Equal(t, "tok-123", ws.tokens[0], "credential rides the URL")
	ws.mu.Unlock()

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"new_alert","alert":{"id":"a1","siteId":"s1","status":"New"}}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"presence"}`))   // unknown: ignored
	conn.WriteMessage(websocket.TextMessage, []byte(`{{{`))                   // malformed: ignored
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"update_alert","alert":{"id":"a1","siteId":"s1","status":"Resolved"}}`))

	waitFor(t, func() bool { return rec.eventCount() == 2 }, "typed events not delivered")

	rec.mu.Lock()
	assert.Equal(t, alerts.EventCreated, rec.events[0].Kind)
	assert.Equal(t, alerts.EventUpdated, rec.events[1].Kind)
	rec.mu.Unlock()
}

func TestClient_ReconnectsAfterClosure(t *testing.T) {
	ws := newWsTestServer(t)
	rec := &recorder{}

	c := NewClient(ws.url(), "tok", rec.callbacks())
	c.delay = backoff.Fixed(10 * time.Millisecond) // keep the test fast
	require.NoError(t, c.Connect())
	defer c.Close()

	first := ws.waitConn(t, 1)
	waitFor(t, func() bool { return c.Status() == StatusConnected }, "never connected")

	first.Close()
	second := ws.waitConn(t, 2)
	require.NotNil(t, second)
	waitFor(t, func() bool { return c.Status() == StatusConnected }, "never reconnected")
	assert.True(t, rec.sawStatus(StatusDisconnected))

	c.mu.Lock()
	assert.Equal(t, 0, c.attempt, "attempt counter resets on successful open")
	c.mu.Unlock()

	// The re-established channel still delivers.
	second.WriteMessage(websocket.TextMessage, []byte(`{"type":"new_alert","alert":{"id":"a9","siteId":"s1"}}`))
	waitFor(t, func() bool { return rec.eventCount() == 1 }, "event on reconnected channel lost")
}

func TestClient_CloseSuppressesReconnect(t *testing.T) {
	ws := newWsTestServer(t)
	rec := &recorder{}

	c := NewClient(ws.url(), "tok", rec.callbacks())
	c.delay = backoff.Fixed(10 * time.Millisecond)
	require.NoError(t, c.Connect())
	ws.waitConn(t, 1)
	waitFor(t, func() bool { return c.Status() == StatusConnected }, "never connected")

	require.NoError(t, c.Close())
	time.Sleep(60 * time.Millisecond)

	ws.mu.Lock()
	assert.Len(t, ws.conns, 1, "no reconnect after Close")
	ws.mu.Unlock()
}

func TestClient_CloseBeforeConnectIsSafe(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/nowhere", "tok", Callbacks{})
	assert.NoError(t, c.Close(), "Close is callable from any state")
}

func TestClient_DialFailureSchedulesRetry(t *testing.T) {
	rec := &recorder{}
	// Nothing listens here; every dial fails.
	c := NewClient("ws://127.0.0.1:1/nowhere", "tok", rec.callbacks())
	c.delay = backoff.Fixed(10 * time.Millisecond)
	require.NoError(t, c.Connect())
	defer c.Close()

	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.attempt >= 2
	}, "dial failures should keep scheduling retries")
	assert.True(t, rec.sawStatus(StatusError))
}
