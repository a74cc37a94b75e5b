// Package signal owns the connection to the rendezvous service: identity
// announcement, routed message delivery, and the
// initialize/reinitialize/destroy lifecycle. Callers receive decoded events
// through Handlers; all WebSocket detail stays internal.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/shivaprasad369/pocky/internal/signalmsg"
	"github.com/shivaprasad369/pocky/internal/util"
)

// Status is the session lifecycle state.
type Status int

const (
	StatusInitializing Status = iota
	StatusReady
	StatusDegraded
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "Initializing"
	case StatusReady:
		return "Ready"
	case StatusDegraded:
		return "Degraded"
	case StatusClosed:
		return "Closed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

var (
	// ErrNotReady is returned by Send before Initialize succeeds or
	// after the connection degrades.
	ErrNotReady = errors.New("signaling session not ready")
	// ErrDestroyed is returned when operating on a destroyed session.
	ErrDestroyed = errors.New("signaling session destroyed")
)

// SessionError is a classified signaling failure, carrying the identity it
// happened under so reports can distinguish sessions across
// reinitializations.
type SessionError struct {
	Kind     signalmsg.ErrorKind
	Identity string
	Detail   string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("signaling error (%s, identity=%s): %s", e.Kind, e.Identity, e.Detail)
}

// ICEServer describes one ICE/relay server handed to the transport layer.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Config holds the session parameters. ICEServers should include at least
// one TURN-capable relay for networks where direct connectivity is blocked.
type Config struct {
	ServerURL  string
	ICEServers []ICEServer
}

// RTCConfiguration converts the configured ICE servers into a pion
// PeerConnection configuration.
func (c Config) RTCConfiguration() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		servers = append(servers, ice)
	}
	return webrtc.Configuration{ICEServers: servers}
}

// Handlers receives decoded session events. All callbacks are invoked from
// the session's read goroutine; handlers must not call back into Session
// methods that block on that goroutine.
type Handlers struct {
	OnReady        func(identity string)
	OnIncomingCall func(remote string, offer webrtc.SessionDescription)
	OnAnswer       func(remote string, answer webrtc.SessionDescription)
	OnCandidate    func(remote string, candidate webrtc.ICECandidateInit)
	OnPeerLeave    func(remote string)
	OnError        func(kind signalmsg.ErrorKind, detail string)
}

// Session is the process-wide connection to the rendezvous service. A fresh
// identity is generated on every (re)initialization; a reinitialize
// invalidates any call bound to the old identity.
type Session struct {
	cfg      Config
	handlers Handlers
	log      *logrus.Entry

	mu       sync.Mutex
	conn     *websocket.Conn
	identity string
	status   Status
	attempt  int    // reconnect attempt counter, survives reinitialization
	gen      uint64 // bumps on every teardown; stale read loops self-cancel
	reinit   bool   // reentrancy guard for Reinitialize

	wmu sync.Mutex // serializes writes to conn
}

// NewSession creates a Session. Handlers may be replaced with SetHandlers
// before Initialize is called.
func NewSession(cfg Config, h Handlers) *Session {
	return &Session{
		cfg:      cfg,
		handlers: h,
		log:      util.Logger("signal"),
	}
}

// SetHandlers replaces the event handlers. Must be called before
// Initialize.
func (s *Session) SetHandlers(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

// Initialize generates a fresh identity, connects to the rendezvous server,
// and registers. On success the session is Ready and the identity is
// returned.
func (s *Session) Initialize(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return "", ErrDestroyed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("session already connected as %s", s.identity)
	}
	identity := NewIdentity()
	s.identity = identity
	s.status = StatusInitializing
	s.mu.Unlock()

	log := s.log.WithField("identity", identity)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.ServerURL, nil)
	if err != nil {
		s.setStatus(StatusDegraded)
		return "", &SessionError{Kind: signalmsg.KindNetwork, Identity: identity, Detail: err.Error()}
	}

	if err := conn.WriteJSON(signalmsg.Message{Type: signalmsg.TypeOpen, Src: identity}); err != nil {
		conn.Close()
		s.setStatus(StatusDegraded)
		return "", &SessionError{Kind: signalmsg.KindSocket, Identity: identity, Detail: err.Error()}
	}

	// The server's first message is either the registration ack or a
	// rejection.
	var ack signalmsg.Message
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		s.setStatus(StatusDegraded)
		return "", &SessionError{Kind: signalmsg.KindSocket, Identity: identity, Detail: err.Error()}
	}
	if ack.Type != signalmsg.TypeOpen {
		conn.Close()
		s.setStatus(StatusDegraded)
		kind := ack.Kind
		if kind == "" {
			kind = signalmsg.KindServer
		}
		return "", &SessionError{Kind: kind, Identity: identity, Detail: ack.Text}
	}

	s.mu.Lock()
	s.conn = conn
	s.status = StatusReady
	gen := s.gen
	h := s.handlers
	s.mu.Unlock()

	log.Info("registered with rendezvous server")
	go s.readLoop(conn, gen, identity)

	if h.OnReady != nil {
		h.OnReady(identity)
	}
	return identity, nil
}

// Reinitialize tears down the current connection and initializes again with
// a new identity. Idempotent against reentry: a reinitialize triggered from
// inside an error handler while one is already running is a no-op.
func (s *Session) Reinitialize(ctx context.Context) error {
	s.mu.Lock()
	if s.reinit {
		s.mu.Unlock()
		return nil
	}
	s.reinit = true
	s.attempt++
	s.teardownLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reinit = false
		s.mu.Unlock()
	}()

	_, err := s.Initialize(ctx)
	return err
}

// Destroy is the terminal teardown. No further events fire. Safe to call
// multiple times.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.status = StatusClosed
}

// Send stamps the local identity as Src and writes the message.
func (s *Session) Send(msg signalmsg.Message) error {
	s.mu.Lock()
	conn := s.conn
	msg.Src = s.identity
	s.mu.Unlock()

	if conn == nil {
		return ErrNotReady
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return &SessionError{Kind: signalmsg.KindSocket, Identity: msg.Src, Detail: err.Error()}
	}
	return nil
}

// Identity returns the identity of the current initialization, or "" before
// the first Initialize.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Attempt returns how many reinitializations have happened.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// teardownLocked closes the connection and bumps the generation so the read
// loop belonging to the old connection exits silently.
func (s *Session) teardownLocked() {
	s.gen++
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// readLoop dispatches inbound messages until the connection dies. A read
// failure on the current generation degrades the session and surfaces a
// socket error; a failure on a stale generation (after teardown) is
// expected and ignored.
func (s *Session) readLoop(conn *websocket.Conn, gen uint64, identity string) {
	log := s.log.WithField("identity", identity)
	for {
		var msg signalmsg.Message
		if err := conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			stale := s.gen != gen
			if !stale {
				s.status = StatusDegraded
				s.conn = nil
			}
			h := s.handlers
			s.mu.Unlock()

			if stale {
				return
			}
			log.WithError(err).Warn("signaling connection lost")
			if h.OnError != nil {
				h.OnError(signalmsg.KindSocket, err.Error())
			}
			return
		}

		s.mu.Lock()
		stale := s.gen != gen
		h := s.handlers
		s.mu.Unlock()
		if stale {
			return
		}

		switch msg.Type {
		case signalmsg.TypeOffer:
			if h.OnIncomingCall != nil {
				h.OnIncomingCall(msg.Src, webrtc.SessionDescription{
					Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
				})
			}

		case signalmsg.TypeAnswer:
			if h.OnAnswer != nil {
				h.OnAnswer(msg.Src, webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
				})
			}

		case signalmsg.TypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				log.WithError(err).Warn("dropping malformed ICE candidate")
				continue
			}
			if h.OnCandidate != nil {
				h.OnCandidate(msg.Src, init)
			}

		case signalmsg.TypeLeave:
			if h.OnPeerLeave != nil {
				h.OnPeerLeave(msg.Src)
			}

		case signalmsg.TypeError:
			log.WithFields(logrus.Fields{"kind": msg.Kind, "detail": msg.Text}).Warn("server reported error")
			if h.OnError != nil {
				h.OnError(msg.Kind, msg.Text)
			}

		default:
			log.WithField("type", msg.Type).Debug("ignoring unknown message type")
		}
	}
}
