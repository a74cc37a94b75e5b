package call

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/shivaprasad369/pocky/internal/media"
)

// link wraps the PeerConnection for one call: local tracks attached, chat
// channel created on the dialing side, connection state recorded. Its
// lifetime is bounded by the context passed at construction; a failed or
// closed PeerConnection cancels it.
type link struct {
	pc   *webrtc.PeerConnection
	chat *webrtc.DataChannel // non-nil on the initiating side

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// newLink builds the PeerConnection, adds every local track, and, when
// initiating, creates the ordered reliable chat channel. The answering side
// receives the channel through OnDataChannel instead.
func newLink(ctx context.Context, cfg webrtc.Configuration, stream *media.Stream, initiate bool) (*link, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	for _, t := range stream.Tracks() {
		if _, err := pc.AddTrack(t.Local()); err != nil {
			pc.Close()
			return nil, err
		}
	}

	var chat *webrtc.DataChannel
	if initiate {
		// nil init: ordered and reliable, matching the messenger's
		// delivery contract.
		chat, err = pc.CreateDataChannel("chat", nil)
		if err != nil {
			pc.Close()
			return nil, err
		}
	}

	lCtx, lCancel := context.WithCancel(ctx)
	l := &link{
		pc:      pc,
		chat:    chat,
		ctx:     lCtx,
		cancel:  lCancel,
		pcState: webrtc.PeerConnectionStateNew,
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l.mu.Lock()
		l.pcState = state
		l.mu.Unlock()
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			lCancel()
		}
	})

	return l, nil
}

// Done is closed when the link is shut down (PC failed/closed or Close was
// called).
func (l *link) Done() <-chan struct{} {
	return l.ctx.Done()
}

func (l *link) Close() error {
	l.cancel()
	return l.pc.Close()
}

func (l *link) ConnectionState() webrtc.PeerConnectionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pcState
}

func (l *link) CreateOffer() (webrtc.SessionDescription, error) {
	return l.pc.CreateOffer(nil)
}

func (l *link) CreateAnswer() (webrtc.SessionDescription, error) {
	return l.pc.CreateAnswer(nil)
}

func (l *link) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return l.pc.SetLocalDescription(sdp)
}

func (l *link) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(sdp)
}

func (l *link) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(candidate)
}

// OnICECandidate registers the trickle callback. A nil candidate signals
// the end of gathering.
func (l *link) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	l.pc.OnICECandidate(fn)
}

func (l *link) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	l.pc.OnTrack(fn)
}

func (l *link) OnDataChannel(fn func(*webrtc.DataChannel)) {
	l.pc.OnDataChannel(fn)
}
