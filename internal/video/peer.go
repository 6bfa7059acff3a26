package video

import (
	"context"
)

// ConnState is the media-level connection state reported by the peer.
type ConnState string

const (
	PeerConnecting   ConnState = "connecting"
	PeerConnected    ConnState = "connected"
	PeerDisconnected ConnState = "disconnected"
	PeerFailed       ConnState = "failed"
	PeerClosed       ConnState = "closed"
)

// Track is an opaque handle to a remote media track.
type Track interface{}

// PeerConnection is the local media endpoint for one negotiation attempt.
// The production implementation is the pion-backed peer; tests substitute
// scripted fakes.
type PeerConnection interface {
	// CreateOffer produces the local SDP offer, candidates gathered.
	CreateOffer(ctx context.Context) (string, error)
	// SetAnswer applies the relay's SDP answer.
	SetAnswer(ctx context.Context, sdp string) error
	OnStateChange(fn func(ConnState))
	OnTrack(fn func(Track))
	Close() error
}

// PeerFactory builds a fresh peer per negotiation attempt. Peers are
// never reused across attempts.
type PeerFactory func() (PeerConnection, error)

// Sink receives the rendered media tracks for one camera view.
type Sink interface {
	Attach(t Track)
	Detach()
}
