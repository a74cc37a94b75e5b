package media

import (
	"errors"
	"testing"
)

// failingSource simulates a denied permission prompt.
type failingSource struct{}

func (failingSource) Open(Constraints) ([]*Track, error) {
	return nil, errors.New("permission denied")
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(SyntheticSource{})
}

// TestAcquireIdempotent verifies a second Acquire returns the stream
// already held instead of re-acquiring.
func TestAcquireIdempotent(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Acquire(DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	second, err := m.Acquire(DefaultConstraints())
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if first != second {
		t.Fatal("second Acquire should return the held stream")
	}
}

// TestAcquireFailure verifies source failures surface as ErrAcquisition
// and leave the manager empty.
func TestAcquireFailure(t *testing.T) {
	m := NewManager(failingSource{})

	_, err := m.Acquire(DefaultConstraints())
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("expected ErrAcquisition, got %v", err)
	}
	if m.Stream() != nil {
		t.Fatal("no stream should be held after a failed acquisition")
	}
}

// TestReleaseIsNoOpWhenEmpty verifies Release is safe with nothing held.
func TestReleaseIsNoOpWhenEmpty(t *testing.T) {
	m := newTestManager(t)
	m.Release() // must not panic
	m.Release()
}

// TestReleaseDropsStream verifies a released stream is gone and a new
// Acquire creates a fresh one.
func TestReleaseDropsStream(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Acquire(DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	m.Release()
	if m.Stream() != nil {
		t.Fatal("stream should be nil after Release")
	}

	second, err := m.Acquire(DefaultConstraints())
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh stream after Release")
	}
}

// TestSetTrackEnabledIsPerKind verifies toggling one kind never touches
// the other, and that toggling with no stream held is a no-op.
func TestSetTrackEnabledIsPerKind(t *testing.T) {
	m := newTestManager(t)
	m.SetTrackEnabled(KindAudio, false) // nothing held: no-op

	stream, err := m.Acquire(DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	audio := stream.Track(KindAudio)
	video := stream.Track(KindVideo)
	if audio == nil || video == nil {
		t.Fatal("synthetic source should produce one track per kind")
	}
	if !audio.Enabled() || !video.Enabled() {
		t.Fatal("tracks should start enabled")
	}

	m.SetTrackEnabled(KindAudio, false)
	if audio.Enabled() {
		t.Error("audio should be disabled")
	}
	if !video.Enabled() {
		t.Error("video must be untouched by an audio toggle")
	}

	m.SetTrackEnabled(KindVideo, false)
	m.SetTrackEnabled(KindAudio, true)
	if !audio.Enabled() {
		t.Error("audio should be re-enabled")
	}
	if video.Enabled() {
		t.Error("video should stay disabled")
	}
}

// TestRemoteStreamRelease verifies release is idempotent and drops tracks.
func TestRemoteStreamRelease(t *testing.T) {
	rs := NewRemoteStream("peer-42")
	if rs.Peer() != "peer-42" {
		t.Fatalf("unexpected peer: %s", rs.Peer())
	}

	rs.Release()
	rs.Release() // idempotent
	if got := len(rs.Tracks()); got != 0 {
		t.Fatalf("expected no tracks after release, got %d", got)
	}
}
