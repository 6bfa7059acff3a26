package video

import (
	"context"
	"log"

	"github.com/pion/webrtc/v4"
)

// NewPeerFactory returns the production PeerFactory: a recvonly pion
// peer connection per negotiation attempt, mirroring the viewer side of
// the WHEP exchange.
func NewPeerFactory() PeerFactory {
	return func() (PeerConnection, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			return nil, err
		}
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, err
			}
		}
		return &pionPeer{pc: pc}, nil
	}
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	// WHEP is a single round trip: wait for gathering so the offer
	// carries every candidate.
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *pionPeer) SetAnswer(_ context.Context, sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (p *pionPeer) OnStateChange(fn func(ConnState)) {
	p.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		switch st {
		case webrtc.PeerConnectionStateConnecting:
			fn(PeerConnecting)
		case webrtc.PeerConnectionStateConnected:
			fn(PeerConnected)
		case webrtc.PeerConnectionStateDisconnected:
			fn(PeerDisconnected)
		case webrtc.PeerConnectionStateFailed:
			fn(PeerFailed)
		case webrtc.PeerConnectionStateClosed:
			fn(PeerClosed)
		}
	})
}

func (p *pionPeer) OnTrack(fn func(Track)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

// LogSink is the headless sink: it records that media is flowing without
// rendering it. GUI embedders provide their own Sink.
type LogSink struct {
	CameraID string
}

func (s *LogSink) Attach(Track) {
	log.Printf("[Camera %s] Media track attached", s.CameraID)
}

func (s *LogSink) Detach() {
	log.Printf("[Camera %s] Media sink detached", s.CameraID)
}
