package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/shivaprasad369/pocky/internal/util"
)

// ErrAcquisition marks capture failures: permission denied, no matching
// device, or a source fault. Match with errors.Is.
var ErrAcquisition = errors.New("media device acquisition failed")

// Manager owns the local capture stream. Acquisition is idempotent: a
// second Acquire returns the stream already held. Callers borrow the
// stream; only the Manager stops its tracks.
type Manager struct {
	source Source
	log    *logrus.Entry

	mu     sync.Mutex
	stream *Stream
}

// NewManager creates a Manager backed by the given capture source.
func NewManager(source Source) *Manager {
	return &Manager{
		source: source,
		log:    util.Logger("media"),
	}
}

// Acquire opens capture devices matching the constraints. If a stream is
// already held it is returned as-is without re-acquiring. Acquisition may
// block on an external permission prompt, so pass a context-bound source
// if that matters.
func (m *Manager) Acquire(c Constraints) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return m.stream, nil
	}

	tracks, err := m.source.Open(c)
	if err != nil {
		m.log.WithError(err).Error("capture acquisition failed")
		return nil, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	m.stream = &Stream{tracks: tracks}
	m.log.WithField("tracks", len(tracks)).Info("local stream acquired")
	return m.stream, nil
}

// Stream returns the held stream, or nil when nothing is acquired.
func (m *Manager) Stream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Release stops all tracks and drops the handle. No-op when nothing is
// held.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return
	}
	m.stream.stop()
	m.stream = nil
	m.log.Info("local stream released")
}

// SetTrackEnabled toggles the first track of the given kind. Muting only
// affects what the peer receives from the next frame on; no renegotiation
// happens. No-op if no such track exists.
func (m *Manager) SetTrackEnabled(kind TrackKind, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return
	}
	t := m.stream.Track(kind)
	if t == nil {
		return
	}
	t.SetEnabled(enabled)
	m.log.WithFields(logrus.Fields{"kind": kind, "enabled": enabled}).Debug("track toggled")
}
