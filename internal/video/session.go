package video

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-dispatch/internal/backoff"
	"github.com/technosupport/ts-dispatch/internal/metrics"
)

// State of one camera's video session.
type State string

const (
	StateIdle        State = "Idle"
	StateNegotiating State = "Negotiating"
	StateConnected   State = "Connected"
	StateFailed      State = "Failed"
)

// Backend is the slice of the REST collaborator the video path needs.
type Backend interface {
	SourceURL(ctx context.Context, cameraID string) (string, error)
	StartRelay(ctx context.Context, path, sourceURL string) error
	RenewRelay(ctx context.Context, path, sourceURL string) error
}

// Negotiator performs the WHEP offer/answer exchange.
type Negotiator interface {
	Negotiate(ctx context.Context, path, offerSDP string) (string, error)
}

// Options tune per-session timing. Zero values take the defaults.
type Options struct {
	// RetryDelay is the flat delay before an automatic retry. The video
	// path deliberately does not back off: a single camera retry is
	// cheap, unlike a whole-session stream reconnect.
	RetryDelay time.Duration
	// IngestSettle is the pause between starting the relay ingest and
	// sending the offer, giving the relay time to bring the path up.
	IngestSettle time.Duration
	// KeepAliveInterval spaces the relay renewal calls. <= 0 disables.
	KeepAliveInterval time.Duration
}

const (
	defaultRetryDelay   = 5 * time.Second
	defaultIngestSettle = 250 * time.Millisecond
	defaultKeepAlive    = 30 * time.Second
)

func (o *Options) withDefaults() Options {
	out := *o
	if out.RetryDelay <= 0 {
		out.RetryDelay = defaultRetryDelay
	}
	if out.IngestSettle <= 0 {
		out.IngestSettle = defaultIngestSettle
	}
	if out.KeepAliveInterval == 0 {
		out.KeepAliveInterval = defaultKeepAlive
	}
	return out
}

// Info is the read-model projection of a session.
type Info struct {
	CameraID   string `json:"cameraId"`
	State      State  `json:"connectionState"`
	RetryCount int    `json:"retryCount"`
	LastError  string `json:"lastError,omitempty"`
}

// Session supervises the live-video lifecycle of one camera in view.
// Each session is fully independent: a failure or retry in one never
// blocks another. Lifetime ends with Close; sessions are not reused.
type Session struct {
	cameraID string
	path     string

	backend Backend
	relay   Negotiator
	peers   PeerFactory
	sink    Sink
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	retry  *backoff.Timer

	mu         sync.Mutex
	state      State
	retryCount int
	lastError  string
	closed     bool
	attempt    string
	pc         PeerConnection
	sourceURL  string
}

func newSession(cameraID string, backend Backend, relay Negotiator, peers PeerFactory, sink Sink, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cameraID: cameraID,
		path:     fmt.Sprintf("camera_%s", cameraID),
		backend:  backend,
		relay:    relay,
		peers:    peers,
		sink:     sink,
		opts:     opts.withDefaults(),
		ctx:      ctx,
		cancel:   cancel,
		retry:    backoff.NewTimer(),
		state:    StateIdle,
	}
	metrics.VideoSessions.WithLabelValues(string(StateIdle)).Inc()
	return s
}

// Start kicks off negotiation. Non-blocking.
func (s *Session) Start() {
	s.begin()
	if s.opts.KeepAliveInterval > 0 {
		go s.keepAliveLoop()
	}
}

// Retry restarts the whole sequence, tearing down any half-open
// negotiation first. Manual "retry now" and the automatic retry timer
// both land here, so the two paths are identical.
func (s *Session) Retry() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	metrics.VideoRetriesTotal.Inc()
	log.Printf("[Camera %s] Restarting stream...", s.cameraID)
	s.begin()
}

// Close tears the session down: pending retry canceled, callbacks
// detached, connection closed, sink released. Idempotent, and safe even
// if negotiation never completed. The session is done for good after
// this; a reopened view gets a fresh Session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.attempt = ""
	pc := s.pc
	s.pc = nil
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	s.retry.Stop()
	s.cancel()
	if pc != nil {
		pc.Close()
	}
	if s.sink != nil {
		s.sink.Detach()
	}
	// The session's gauge slot goes away with it.
	metrics.VideoSessions.WithLabelValues(string(StateIdle)).Dec()
	log.Printf("[Camera %s] Session closed", s.cameraID)
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		CameraID:   s.cameraID,
		State:      s.state,
		RetryCount: s.retryCount,
		LastError:  s.lastError,
	}
}

// begin starts a fresh negotiation attempt, invalidating the previous one
// so its late callbacks and answers are discarded rather than applied.
func (s *Session) begin() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.retry.Cancel()
	id := uuid.New().String()
	s.attempt = id
	oldPC := s.pc
	s.pc = nil
	s.setStateLocked(StateNegotiating)
	s.lastError = ""
	attemptNo := s.retryCount + 1
	s.mu.Unlock()

	if oldPC != nil {
		oldPC.Close()
	}

	log.Printf("[Camera %s] Attempting to start stream (attempt %d)...", s.cameraID, attemptNo)
	go s.negotiate(id)
}

func (s *Session) negotiate(id string) {
	src, err := s.backend.SourceURL(s.ctx, s.cameraID)
	if err != nil {
		s.fail(id, fmt.Errorf("source locator: %w", err))
		return
	}

	if err := s.backend.StartRelay(s.ctx, s.path, src); err != nil {
		s.fail(id, fmt.Errorf("start relay: %w", err))
		return
	}

	// Let the relay bring the ingest up before offering.
	select {
	case <-time.After(s.opts.IngestSettle):
	case <-s.ctx.Done():
		return
	}

	pc, err := s.peers()
	if err != nil {
		s.fail(id, fmt.Errorf("peer connection: %w", err))
		return
	}

	s.mu.Lock()
	if s.closed || s.attempt != id {
		s.mu.Unlock()
		pc.Close()
		return
	}
	s.pc = pc
	s.sourceURL = src
	s.mu.Unlock()

	pc.OnTrack(func(tr Track) {
		if s.current(id) && s.sink != nil {
			s.sink.Attach(tr)
		}
	})
	pc.OnStateChange(func(st ConnState) {
		s.onPeerState(id, st)
	})

	offer, err := pc.CreateOffer(s.ctx)
	if err != nil {
		s.fail(id, fmt.Errorf("create offer: %w", err))
		return
	}

	answer, err := s.relay.Negotiate(s.ctx, s.path, offer)
	if err != nil {
		s.fail(id, fmt.Errorf("whep exchange: %w", err))
		return
	}

	// An answer for a torn-down attempt is discarded, not applied.
	if !s.current(id) {
		return
	}
	if err := pc.SetAnswer(s.ctx, answer); err != nil {
		s.fail(id, fmt.Errorf("apply answer: %w", err))
		return
	}
	// Connected is declared by the peer's state callback, not here.
}

func (s *Session) onPeerState(id string, st ConnState) {
	switch st {
	case PeerConnected:
		s.mu.Lock()
		if !s.currentLocked(id) {
			s.mu.Unlock()
			return
		}
		s.setStateLocked(StateConnected)
		s.lastError = ""
		s.retryCount = 0
		s.mu.Unlock()
		log.Printf("[Camera %s] Stream connected", s.cameraID)
	case PeerDisconnected, PeerFailed, PeerClosed:
		s.fail(id, errors.New("stream interrupted"))
	}
}

// fail marks the attempt Failed and arms one automatic retry, unless the
// view has since been closed or a newer attempt superseded this one.
func (s *Session) fail(id string, err error) {
	s.mu.Lock()
	if !s.currentLocked(id) {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateFailed)
	s.lastError = err.Error()
	s.retryCount++
	pc := s.pc
	s.pc = nil
	s.mu.Unlock()

	if pc != nil {
		pc.Close()
	}
	log.Printf("[Camera %s] Stream failed: %v. Retrying in %s", s.cameraID, err, s.opts.RetryDelay)
	s.retry.Schedule(s.opts.RetryDelay, s.Retry)
}

func (s *Session) current(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(id)
}

func (s *Session) currentLocked(id string) bool {
	return !s.closed && s.attempt == id
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	metrics.VideoSessions.WithLabelValues(string(s.state)).Dec()
	metrics.VideoSessions.WithLabelValues(string(next)).Inc()
	s.state = next
}

func (s *Session) keepAliveLoop() {
	ticker := time.NewTicker(s.opts.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			state, src := s.state, s.sourceURL
			s.mu.Unlock()
			if state != StateConnected || src == "" {
				continue
			}
			if err := s.backend.RenewRelay(s.ctx, s.path, src); err != nil {
				log.Printf("[Camera %s] Relay keep-alive failed: %v", s.cameraID, err)
			}
		}
	}
}
