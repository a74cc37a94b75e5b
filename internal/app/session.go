// Package app assembles the core components into one SessionManager: the
// media manager, signaling session, call controller, messenger, and
// recovery policy, wired together and exposed to the UI layer through
// commands and callbacks. Nothing here is package-global; independent
// managers can coexist in one process.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/shivaprasad369/pocky/internal/call"
	"github.com/shivaprasad369/pocky/internal/chat"
	"github.com/shivaprasad369/pocky/internal/clock"
	"github.com/shivaprasad369/pocky/internal/media"
	"github.com/shivaprasad369/pocky/internal/recovery"
	"github.com/shivaprasad369/pocky/internal/signal"
	"github.com/shivaprasad369/pocky/internal/signalmsg"
	"github.com/shivaprasad369/pocky/internal/util"
)

// Callbacks is the application-facing event surface. The UI layer consumes
// these and produces commands; it renders whatever state they carry.
type Callbacks struct {
	OnStatus        func(status signal.Status, identity string)
	OnCallState     func(remote string, state call.State)
	OnLocalStream   func(stream *media.Stream)
	OnRemoteStream  func(stream *media.RemoteStream)
	OnMessage       func(msg chat.Message)
	OnCallEnded     func(remote string, final call.State)
	OnAttachWarning func(remote string, attempts int)
	OnError         func(report recovery.Report)
}

// Config holds everything a SessionManager needs. Zero-value fields pick
// defaults: synthetic capture source, real clock, standard constraints,
// 2s retry delay.
type Config struct {
	Signal      signal.Config
	Constraints media.Constraints
	Source      media.Source
	Sink        call.Sink
	Clock       clock.Clock
	RetryDelay  time.Duration

	// ManualAnswer leaves incoming calls ringing until Answer is
	// called. Default is auto-answer.
	ManualAnswer bool
}

// SessionManager owns one peer session end to end.
type SessionManager struct {
	cfg Config
	cb  Callbacks
	log *logrus.Entry

	media      *media.Manager
	session    *signal.Session
	controller *call.Controller
	messenger  *chat.Messenger
	policy     *recovery.Policy
}

// reinitializer tears down any in-progress call before replacing the
// session identity, so no call outlives the identity it was bound to.
type reinitializer struct{ m *SessionManager }

func (r reinitializer) Reinitialize(ctx context.Context) error {
	r.m.controller.Abandon()
	return r.m.session.Reinitialize(ctx)
}

// NewSessionManager builds and wires the components. Call Start to bring
// the session up.
func NewSessionManager(cfg Config, cb Callbacks) *SessionManager {
	if cfg.Source == nil {
		cfg.Source = media.SyntheticSource{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Constraints.Audio.SampleRate == 0 {
		cfg.Constraints = media.DefaultConstraints()
	}

	m := &SessionManager{
		cfg: cfg,
		cb:  cb,
		log: util.Logger("session"),
	}

	m.media = media.NewManager(cfg.Source)
	m.messenger = chat.NewMessenger()
	m.messenger.OnMessage(func(msg chat.Message) {
		if cb.OnMessage != nil {
			cb.OnMessage(msg)
		}
	})

	m.session = signal.NewSession(cfg.Signal, signal.Handlers{})
	reinit := reinitializer{m}
	m.policy = recovery.NewPolicy(reinit, cfg.Clock, cfg.RetryDelay, func(r recovery.Report) {
		if cb.OnError != nil {
			cb.OnError(r)
		}
	})

	m.controller = call.NewController(call.Config{
		RTC:          cfg.Signal.RTCConfiguration(),
		Constraints:  cfg.Constraints,
		ManualAnswer: cfg.ManualAnswer,
		Sink:         cfg.Sink,
		RequestReinit: func() {
			if err := reinit.Reinitialize(context.Background()); err != nil {
				m.log.WithError(err).Warn("reinitialize after end failed")
			}
		},
	}, m.media, m.session, cfg.Clock, call.Events{
		OnStateChange: func(remote string, st call.State) {
			if cb.OnCallState != nil {
				cb.OnCallState(remote, st)
			}
		},
		OnLocalStream: func(s *media.Stream) {
			if cb.OnLocalStream != nil {
				cb.OnLocalStream(s)
			}
		},
		OnRemoteStream: func(s *media.RemoteStream) {
			if cb.OnRemoteStream != nil {
				cb.OnRemoteStream(s)
			}
		},
		OnDataChannel: func(remote string, dc *webrtc.DataChannel) {
			m.messenger.Bind(remote, dc)
		},
		OnEnded: func(remote string, final call.State) {
			m.messenger.Close()
			if cb.OnCallEnded != nil {
				cb.OnCallEnded(remote, final)
			}
		},
		OnAttachGiveUp: func(remote string, attempts int) {
			if cb.OnAttachWarning != nil {
				cb.OnAttachWarning(remote, attempts)
			}
		},
		OnCallError: func(remote string, st call.State, err error) {
			identity := m.session.Identity()
			if errors.Is(err, media.ErrAcquisition) {
				m.policy.HandleMediaError(identity, st, err)
				return
			}
			m.policy.HandleCallFailure(identity, st, err)
		},
	})

	m.session.SetHandlers(signal.Handlers{
		OnReady: func(identity string) {
			if cb.OnStatus != nil {
				cb.OnStatus(signal.StatusReady, identity)
			}
		},
		OnIncomingCall: func(remote string, offer webrtc.SessionDescription) {
			m.controller.HandleOffer(context.Background(), remote, offer)
		},
		OnAnswer:    m.controller.HandleAnswer,
		OnCandidate: m.controller.HandleCandidate,
		OnPeerLeave: m.controller.HandlePeerLeave,
		OnError: func(kind signalmsg.ErrorKind, detail string) {
			m.policy.HandleSignalError(m.session.Identity(), m.controller.State(), kind, detail)
			if cb.OnStatus != nil {
				cb.OnStatus(m.session.Status(), m.session.Identity())
			}
		},
	})

	return m
}

// Start initializes the signaling session and returns the advertised
// identity.
func (m *SessionManager) Start(ctx context.Context) (string, error) {
	return m.session.Initialize(ctx)
}

// Dial places an outgoing call to the given identity.
func (m *SessionManager) Dial(ctx context.Context, remote string) error {
	if remote == "" {
		return errors.New("remote identity is empty")
	}
	return m.controller.Dial(ctx, remote)
}

// Answer accepts a ringing incoming call (manual-answer mode).
func (m *SessionManager) Answer(ctx context.Context) error {
	return m.controller.Answer(ctx)
}

// End terminates the active call. Idempotent.
func (m *SessionManager) End() {
	m.controller.End()
}

// SendMessage delivers text over the call's chat channel.
func (m *SessionManager) SendMessage(text string) error {
	return m.messenger.Send(text)
}

// SetAudioEnabled toggles the outgoing audio track (mute).
func (m *SessionManager) SetAudioEnabled(enabled bool) {
	m.media.SetTrackEnabled(media.KindAudio, enabled)
}

// SetVideoEnabled toggles the outgoing video track.
func (m *SessionManager) SetVideoEnabled(enabled bool) {
	m.media.SetTrackEnabled(media.KindVideo, enabled)
}

// Identity returns the current session identity.
func (m *SessionManager) Identity() string {
	return m.session.Identity()
}

// Status returns the signaling session status.
func (m *SessionManager) Status() signal.Status {
	return m.session.Status()
}

// CallState returns the current call state, Idle when none.
func (m *SessionManager) CallState() call.State {
	return m.controller.State()
}

// History returns the chat log of the current call.
func (m *SessionManager) History() *chat.Log {
	return m.messenger.History()
}

// Close shuts everything down: ends any call, cancels pending retries,
// destroys the session, and releases the capture stream.
func (m *SessionManager) Close() {
	m.controller.Abandon()
	m.policy.Stop()
	m.session.Destroy()
	m.media.Release()
}
