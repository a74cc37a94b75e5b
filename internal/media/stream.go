// Package media manages the local capture stream and remote stream handles.
//
// The local stream is owned by the Manager and borrowed by the call layer
// for the duration of a call; only the Manager releases it. Remote streams
// are owned by the call that received them.
package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// TrackKind distinguishes audio from video tracks.
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Track is a local capture track: a pion sample track plus an enabled flag.
// Disabling a track mutes it — the capture source keeps running but samples
// are dropped instead of written, so no renegotiation happens.
type Track struct {
	kind  TrackKind
	local *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	enabled bool
	stopped bool
}

// NewTrack wraps a pion sample track.
func NewTrack(kind TrackKind, local *webrtc.TrackLocalStaticSample) *Track {
	return &Track{kind: kind, local: local, enabled: true}
}

func (t *Track) Kind() TrackKind { return t.kind }

// Local exposes the underlying track for attachment to a PeerConnection.
func (t *Track) Local() *webrtc.TrackLocalStaticSample { return t.local }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// WriteSample forwards a capture sample to the peer. Samples are silently
// dropped while the track is disabled or after the stream was released.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	t.mu.Lock()
	drop := !t.enabled || t.stopped
	t.mu.Unlock()
	if drop {
		return nil
	}
	return t.local.WriteSample(s)
}

// stop marks the track dead. Only the Manager calls this, via Stream.stop.
func (t *Track) stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Stream is the local capture stream: at most one track per kind.
type Stream struct {
	tracks []*Track
}

// Tracks returns all live tracks in acquisition order.
func (s *Stream) Tracks() []*Track { return s.tracks }

// Track returns the first track of the given kind, or nil.
func (s *Stream) Track(kind TrackKind) *Track {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

func (s *Stream) stop() {
	for _, t := range s.tracks {
		t.stop()
	}
}

// RemoteTrack is the view of an inbound track the call layer needs. It is
// satisfied by *webrtc.TrackRemote and by test fakes.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// RemoteStream collects the inbound tracks of one call. It is created when
// the first remote track arrives and released when the call ends.
type RemoteStream struct {
	peer string

	mu       sync.Mutex
	tracks   []RemoteTrack
	released bool
}

// NewRemoteStream creates an empty remote stream bound to a peer identity.
func NewRemoteStream(peer string) *RemoteStream {
	return &RemoteStream{peer: peer}
}

// Peer returns the identity the stream was received from.
func (r *RemoteStream) Peer() string { return r.peer }

// AddTrack records an inbound track. Tracks arriving after release are
// ignored.
func (r *RemoteStream) AddTrack(t RemoteTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.tracks = append(r.tracks, t)
}

// Tracks returns a snapshot of the received tracks.
func (r *RemoteStream) Tracks() []RemoteTrack {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RemoteTrack, len(r.tracks))
	copy(out, r.tracks)
	return out
}

// Release drops the track handles. Idempotent. The transport-level teardown
// (closing the PeerConnection) is the call layer's job.
func (r *RemoteStream) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	r.tracks = nil
}
