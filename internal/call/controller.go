package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/shivaprasad369/pocky/internal/clock"
	"github.com/shivaprasad369/pocky/internal/media"
	"github.com/shivaprasad369/pocky/internal/signalmsg"
	"github.com/shivaprasad369/pocky/internal/util"
)

// Signaler is the outbound half of the signaling session the controller
// needs: the local identity and a way to send routed envelopes.
type Signaler interface {
	Identity() string
	Send(msg signalmsg.Message) error
}

// Sink receives the remote stream for rendering. Attach may fail while the
// rendering surface is not mounted yet; the controller retries on a short
// interval before giving up.
type Sink interface {
	Attach(stream *media.RemoteStream) error
}

// Events are the controller's outbound notifications. Callbacks fire
// outside the controller lock, in transition order.
type Events struct {
	OnStateChange  func(remote string, state State)
	OnLocalStream  func(stream *media.Stream)
	OnRemoteStream func(stream *media.RemoteStream)
	// OnDataChannel fires when the call's chat channel exists: at dial
	// time on the initiating side, on channel arrival on the answering
	// side.
	OnDataChannel  func(remote string, dc *webrtc.DataChannel)
	OnEnded        func(remote string, final State)
	OnAttachGiveUp func(remote string, attempts int)
	OnCallError    func(remote string, state State, err error)
}

// Config holds the controller parameters.
type Config struct {
	RTC         webrtc.Configuration
	Constraints media.Constraints

	// AttachAttempts and AttachInterval bound the stream-attachment
	// retry loop. Defaults: 5 attempts, 50ms apart.
	AttachAttempts int
	AttachInterval time.Duration

	// ManualAnswer disables auto-answer; incoming calls then wait in
	// Ringing until Answer is called.
	ManualAnswer bool

	// Sink, when set, receives the remote stream. Nil means no
	// rendering surface (headless operation, tests).
	Sink Sink

	// RequestReinit is invoked after a local End so a fresh identity is
	// advertised for subsequent calls.
	RequestReinit func()
}

const (
	defaultAttachAttempts = 5
	defaultAttachInterval = 50 * time.Millisecond
)

// Controller drives the state machine for at most one active call.
type Controller struct {
	cfg    Config
	media  *media.Manager
	sig    Signaler
	clk    clock.Clock
	events Events
	log    *logrus.Entry

	mu      sync.Mutex
	call    *Call
	nextGen uint64
}

// NewController creates a Controller. The media manager provides the
// borrowed local stream; the signaler carries negotiation messages.
func NewController(cfg Config, m *media.Manager, sig Signaler, clk clock.Clock, events Events) *Controller {
	if cfg.AttachAttempts <= 0 {
		cfg.AttachAttempts = defaultAttachAttempts
	}
	if cfg.AttachInterval <= 0 {
		cfg.AttachInterval = defaultAttachInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Controller{
		cfg:    cfg,
		media:  m,
		sig:    sig,
		clk:    clk,
		events: events,
		log:    util.Logger("call"),
	}
}

// State returns the current call state, StateIdle when no call exists.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil {
		return StateIdle
	}
	return c.call.state
}

// Current returns the active call's remote identity and state.
func (c *Controller) Current() (remote string, state State, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil {
		return "", StateIdle, false
	}
	return c.call.remote, c.call.state, true
}

// Dial places an outgoing call. Valid only while no call is active. The
// local stream is acquired first (idempotent, may block on a permission
// prompt); an acquisition failure creates no call and leaves the session
// untouched.
func (c *Controller) Dial(ctx context.Context, remote string) error {
	c.mu.Lock()
	if c.call != nil && !c.call.state.Terminal() {
		st := c.call.state
		c.mu.Unlock()
		return &InvalidStateError{Op: "dial", State: st}
	}
	c.mu.Unlock()

	stream, err := c.media.Acquire(c.cfg.Constraints)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.call != nil && !c.call.state.Terminal() {
		st := c.call.state
		c.mu.Unlock()
		return &InvalidStateError{Op: "dial", State: st}
	}

	l, err := newLink(ctx, c.cfg.RTC, stream, true)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	c.nextGen++
	call := &Call{
		remote:    remote,
		direction: Outgoing,
		gen:       c.nextGen,
		state:     StateDialing,
		local:     stream,
		link:      l,
	}
	c.call = call
	c.wireLinkLocked(call)

	offer, err := l.CreateOffer()
	if err == nil {
		err = l.SetLocalDescription(offer)
	}
	if err == nil {
		err = c.sig.Send(signalmsg.Message{
			Type: signalmsg.TypeOffer,
			Dst:  remote,
			SDP:  offer.SDP,
		})
	}
	if err != nil {
		l.Close()
		c.call = nil
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	chat := l.chat
	c.mu.Unlock()

	c.log.WithField("remote", remote).Info("dialing")
	c.fire(func(e Events) {
		if e.OnLocalStream != nil {
			e.OnLocalStream(stream)
		}
		if e.OnDataChannel != nil {
			e.OnDataChannel(remote, chat)
		}
		if e.OnStateChange != nil {
			e.OnStateChange(remote, StateDialing)
		}
	})
	return nil
}

// HandleOffer reacts to an incoming call. A call in progress makes the
// peer busy: the offer is declined with a leave. Otherwise the call enters
// Ringing and, unless ManualAnswer is set, is answered immediately.
func (c *Controller) HandleOffer(ctx context.Context, remote string, offer webrtc.SessionDescription) {
	c.mu.Lock()
	if c.call != nil && !c.call.state.Terminal() {
		st := c.call.state
		c.mu.Unlock()
		c.log.WithFields(logrus.Fields{"remote": remote, "state": st}).Info("declining offer, call in progress")
		c.sig.Send(signalmsg.Message{Type: signalmsg.TypeLeave, Dst: remote})
		return
	}

	c.nextGen++
	c.call = &Call{
		remote:    remote,
		direction: Incoming,
		gen:       c.nextGen,
		state:     StateRinging,
		offer:     offer,
	}
	c.mu.Unlock()

	c.log.WithField("remote", remote).Info("incoming call")
	c.fire(func(e Events) {
		if e.OnStateChange != nil {
			e.OnStateChange(remote, StateRinging)
		}
	})

	if c.cfg.ManualAnswer {
		return
	}
	if err := c.Answer(ctx); err != nil {
		c.fire(func(e Events) {
			if e.OnCallError != nil {
				e.OnCallError(remote, StateRinging, err)
			}
		})
	}
}

// Answer accepts the ringing call: acquires the local stream, applies the
// pending offer, and sends the answer back. A media acquisition failure
// destroys the call (back to Idle) without touching the session identity.
func (c *Controller) Answer(ctx context.Context) error {
	c.mu.Lock()
	call := c.call
	if call == nil || call.state != StateRinging {
		st := StateIdle
		if call != nil {
			st = call.state
		}
		c.mu.Unlock()
		return &InvalidStateError{Op: "answer", State: st}
	}
	gen := call.gen
	remote := call.remote
	offer := call.offer
	c.mu.Unlock()

	stream, err := c.media.Acquire(c.cfg.Constraints)
	if err != nil {
		c.abandon(gen)
		return err
	}

	c.mu.Lock()
	if c.call == nil || c.call.gen != gen || c.call.state != StateRinging {
		c.mu.Unlock()
		return &InvalidStateError{Op: "answer", State: StateIdle}
	}

	l, err := newLink(ctx, c.cfg.RTC, stream, false)
	if err != nil {
		c.call = nil
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	call.local = stream
	call.link = l
	c.wireLinkLocked(call)

	err = l.SetRemoteDescription(offer)
	var answer webrtc.SessionDescription
	if err == nil {
		answer, err = l.CreateAnswer()
	}
	if err == nil {
		err = l.SetLocalDescription(answer)
	}
	if err == nil {
		err = c.sig.Send(signalmsg.Message{
			Type: signalmsg.TypeAnswer,
			Dst:  remote,
			SDP:  answer.SDP,
		})
	}
	if err != nil {
		l.Close()
		c.call = nil
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	call.state = StateAnswered
	c.mu.Unlock()

	c.log.WithField("remote", remote).Info("call answered")
	c.fire(func(e Events) {
		if e.OnLocalStream != nil {
			e.OnLocalStream(stream)
		}
		if e.OnStateChange != nil {
			e.OnStateChange(remote, StateAnswered)
		}
	})
	return nil
}

// HandleAnswer applies the peer's answer to the outgoing call. Answers not
// matching the current dialing call are stale and ignored.
func (c *Controller) HandleAnswer(remote string, answer webrtc.SessionDescription) {
	c.mu.Lock()
	call := c.call
	if call == nil || call.remote != remote || call.state != StateDialing {
		c.mu.Unlock()
		c.log.WithField("remote", remote).Debug("ignoring stale answer")
		return
	}
	if err := call.link.SetRemoteDescription(answer); err != nil {
		gen := call.gen
		c.mu.Unlock()
		c.failCall(gen, fmt.Errorf("%w: %v", ErrNegotiation, err))
		return
	}
	call.state = StateAnswered
	c.mu.Unlock()

	c.fire(func(e Events) {
		if e.OnStateChange != nil {
			e.OnStateChange(remote, StateAnswered)
		}
	})
}

// HandleCandidate adds a trickled remote ICE candidate to the active call.
func (c *Controller) HandleCandidate(remote string, candidate webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.call
	if call == nil || call.remote != remote || call.link == nil || call.state.Terminal() {
		return
	}
	if err := call.link.AddICECandidate(candidate); err != nil {
		c.log.WithError(err).Warn("AddICECandidate failed")
	}
}

// HandlePeerLeave ends the call on a peer-initiated close.
func (c *Controller) HandlePeerLeave(remote string) {
	c.mu.Lock()
	call := c.call
	if call == nil || call.remote != remote || call.state.Terminal() {
		c.mu.Unlock()
		return
	}
	fire := c.teardownLocked(StateEnded)
	c.mu.Unlock()

	c.log.WithField("remote", remote).Info("peer ended the call")
	fire()
}

// End terminates the active call. Idempotent: a second End is a no-op with
// no duplicate teardown side effects. The peer is notified best-effort and
// a session reinitialize is requested so a fresh identity is advertised.
func (c *Controller) End() {
	c.mu.Lock()
	call := c.call
	if call == nil || call.state.Terminal() {
		c.mu.Unlock()
		return
	}
	remote := call.remote
	fire := c.teardownLocked(StateEnded)
	c.mu.Unlock()

	c.sig.Send(signalmsg.Message{Type: signalmsg.TypeLeave, Dst: remote})
	c.log.WithField("remote", remote).Info("call ended locally")
	fire()

	if c.cfg.RequestReinit != nil {
		c.cfg.RequestReinit()
	}
}

// Abandon tears down the active call without notifying the peer or
// requesting a reinitialize. Used when the session identity is being
// replaced underneath the call.
func (c *Controller) Abandon() {
	c.mu.Lock()
	call := c.call
	if call == nil || call.state.Terminal() {
		c.mu.Unlock()
		return
	}
	fire := c.teardownLocked(StateEnded)
	c.mu.Unlock()
	fire()
}

// wireLinkLocked registers the per-call callbacks, all stamped with the
// call's generation so they become no-ops after teardown.
func (c *Controller) wireLinkLocked(call *Call) {
	gen := call.gen
	remote := call.remote
	l := call.link

	l.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		data, _ := json.Marshal(cand.ToJSON())
		// Best-effort: trickle failures surface via negotiation timeout.
		c.sig.Send(signalmsg.Message{
			Type:      signalmsg.TypeCandidate,
			Dst:       remote,
			Candidate: string(data),
		})
	})

	l.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.handleRemoteTrack(gen, track)
	})

	l.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.mu.Lock()
		stale := c.call == nil || c.call.gen != gen
		c.mu.Unlock()
		if stale {
			return
		}
		c.fire(func(e Events) {
			if e.OnDataChannel != nil {
				e.OnDataChannel(remote, dc)
			}
		})
	})

	go func() {
		<-l.Done()
		c.failCall(gen, fmt.Errorf("%w: peer connection %s", ErrNegotiation, l.ConnectionState()))
	}()
}

// handleRemoteTrack records an inbound track. The first track of a call
// assembles the remote stream, moves the call to Streaming, and starts the
// attachment retry loop.
func (c *Controller) handleRemoteTrack(gen uint64, track media.RemoteTrack) {
	c.mu.Lock()
	call := c.call
	if call == nil || call.gen != gen || call.state.Terminal() {
		c.mu.Unlock()
		return
	}
	first := call.remoteStream == nil
	if first {
		call.remoteStream = media.NewRemoteStream(call.remote)
	}
	call.remoteStream.AddTrack(track)
	remote := call.remote
	rs := call.remoteStream
	if first {
		call.state = StateStreaming
	}
	c.mu.Unlock()

	if !first {
		return
	}
	c.log.WithField("remote", remote).Info("remote stream receiving")
	c.fire(func(e Events) {
		if e.OnRemoteStream != nil {
			e.OnRemoteStream(rs)
		}
		if e.OnStateChange != nil {
			e.OnStateChange(remote, StateStreaming)
		}
	})
	c.attach(gen, remote, rs, 0)
}

// attach tries to hand the remote stream to the sink, retrying on a short
// interval. The race it absorbs: the stream can arrive before the
// rendering surface is ready to take it. Exceeding the ceiling is a
// warning, not a call failure — the call stays Streaming.
func (c *Controller) attach(gen uint64, remote string, rs *media.RemoteStream, attempt int) {
	if c.cfg.Sink == nil {
		return
	}

	c.mu.Lock()
	if c.call == nil || c.call.gen != gen || c.call.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.cfg.Sink.Attach(rs); err == nil {
		return
	}

	attempt++
	if attempt >= c.cfg.AttachAttempts {
		c.mu.Lock()
		warned := true
		if c.call != nil && c.call.gen == gen && !c.call.attachWarned {
			c.call.attachWarned = true
			warned = false
		}
		c.mu.Unlock()
		if !warned {
			c.log.WithField("remote", remote).Warn("remote stream attachment gave up")
			c.fire(func(e Events) {
				if e.OnAttachGiveUp != nil {
					e.OnAttachGiveUp(remote, attempt)
				}
			})
		}
		return
	}
	c.clk.AfterFunc(c.cfg.AttachInterval, func() {
		c.attach(gen, remote, rs, attempt)
	})
}

// abandon clears a call that never got past setup (media failure during
// answer). The controller returns to Idle; no peer notification, no
// reinitialize.
func (c *Controller) abandon(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil || c.call.gen != gen {
		return
	}
	c.call = nil
}

// failCall tears the call down as Failed after a mid-call error.
func (c *Controller) failCall(gen uint64, err error) {
	c.mu.Lock()
	call := c.call
	if call == nil || call.gen != gen || call.state.Terminal() {
		c.mu.Unlock()
		return
	}
	remote := call.remote
	st := call.state
	fire := c.teardownLocked(StateFailed)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"remote": remote, "state": st}).WithError(err).Error("call failed")
	fire()
	c.fire(func(e Events) {
		if e.OnCallError != nil {
			e.OnCallError(remote, st, err)
		}
	})
}

// teardownLocked releases the call's owned resources and returns the event
// dispatch to run after unlocking. The generation bump makes every pending
// async callback for this call a no-op. The local stream stays with the
// media manager.
func (c *Controller) teardownLocked(final State) func() {
	call := c.call
	c.nextGen++
	if call.link != nil {
		call.link.Close()
	}
	if call.remoteStream != nil {
		call.remoteStream.Release()
	}
	call.state = final
	c.call = nil

	remote := call.remote
	return func() {
		c.fire(func(e Events) {
			if e.OnStateChange != nil {
				e.OnStateChange(remote, final)
			}
			if e.OnEnded != nil {
				e.OnEnded(remote, final)
			}
		})
	}
}

func (c *Controller) fire(f func(Events)) {
	f(c.events)
}
