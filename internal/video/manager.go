package video

import (
	"sort"
	"sync"
)

// SinkFactory builds the media sink for a camera view. May return nil
// when the embedder has nothing to render into.
type SinkFactory func(cameraID string) Sink

// Manager owns one Session per camera currently on screen. Focus, grid
// and wall views all go through the same per-camera sessions; changing
// the visible set tears down sessions that left the screen before (or
// concurrently with) starting the new ones.
type Manager struct {
	backend Backend
	relay   Negotiator
	peers   PeerFactory
	sinks   SinkFactory
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(backend Backend, relay Negotiator, peers PeerFactory, sinks SinkFactory, opts Options) *Manager {
	return &Manager{
		backend:  backend,
		relay:    relay,
		peers:    peers,
		sinks:    sinks,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Open starts (or restarts) the session for one camera. An existing
// session for the same camera is fully torn down first.
func (m *Manager) Open(cameraID string) *Session {
	var sink Sink
	if m.sinks != nil {
		sink = m.sinks(cameraID)
	}

	m.mu.Lock()
	old := m.sessions[cameraID]
	s := newSession(cameraID, m.backend, m.relay, m.peers, sink, m.opts)
	m.sessions[cameraID] = s
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.Start()
	return s
}

// Close terminates the session for one camera, if any.
func (m *Manager) Close(cameraID string) {
	m.mu.Lock()
	s := m.sessions[cameraID]
	delete(m.sessions, cameraID)
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// SetView reconciles the live session set against the cameras now on
// screen: sessions for departed cameras close, new cameras open. Cameras
// already in view keep their session untouched.
func (m *Manager) SetView(cameraIDs []string) {
	want := make(map[string]bool, len(cameraIDs))
	for _, id := range cameraIDs {
		want[id] = true
	}

	m.mu.Lock()
	var closing []*Session
	for id, s := range m.sessions {
		if !want[id] {
			closing = append(closing, s)
			delete(m.sessions, id)
		}
	}
	existing := make(map[string]bool, len(m.sessions))
	for id := range m.sessions {
		existing[id] = true
	}
	m.mu.Unlock()

	for _, s := range closing {
		s.Close()
	}
	for _, id := range cameraIDs {
		if !existing[id] {
			m.Open(id)
		}
	}
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.SetView(nil)
}

// Get returns the live session for a camera.
func (m *Manager) Get(cameraID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[cameraID]
	return s, ok
}

// Infos snapshots every live session for the read model, ordered by
// camera id for stable output.
func (m *Manager) Infos() []Info {
	m.mu.Lock()
	ss := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		ss = append(ss, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}
