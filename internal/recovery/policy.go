// Package recovery classifies failures from the signaling and call layers
// and decides between a delayed session reinitialize and a terminal,
// user-visible report. Retries are event-driven: one pending reinitialize
// at most, never a retry loop.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shivaprasad369/pocky/internal/call"
	"github.com/shivaprasad369/pocky/internal/clock"
	"github.com/shivaprasad369/pocky/internal/signalmsg"
	"github.com/shivaprasad369/pocky/internal/util"
)

// Outcome is the classification of a failure.
type Outcome int

const (
	Retryable Outcome = iota
	Terminal
)

func (o Outcome) String() string {
	if o == Terminal {
		return "terminal"
	}
	return "retryable"
}

// Classify maps a signaling error kind to an outcome. Peer-unavailable,
// network, and socket failures are transient; everything else is terminal
// for the current session.
func Classify(kind signalmsg.ErrorKind) Outcome {
	if kind.Retryable() {
		return Retryable
	}
	return Terminal
}

// Report is a user-visible failure, carrying enough context to tell "my
// media failed" from "peer unreachable" from "session needs attention".
type Report struct {
	Identity  string
	CallState call.State
	Kind      signalmsg.ErrorKind
	Err       error
	Detail    string
}

func (r Report) String() string {
	return fmt.Sprintf("[%s] identity=%s call=%s: %s", r.Kind, r.Identity, r.CallState, r.Detail)
}

// Reinitializer reinitializes the signaling session. Satisfied by
// *signal.Session.
type Reinitializer interface {
	Reinitialize(ctx context.Context) error
}

// DefaultRetryDelay is the pause before the single reinitialize scheduled
// for a retryable signaling error.
const DefaultRetryDelay = 2 * time.Second

// Policy owns the retry timer and the report callback.
type Policy struct {
	session  Reinitializer
	clk      clock.Clock
	delay    time.Duration
	onReport func(Report)
	log      *logrus.Entry

	mu      sync.Mutex
	pending clock.Timer
	stopped bool
}

// NewPolicy creates a Policy. onReport receives every terminal failure and
// every retry escalation; it must not be nil for a user-facing setup but
// may be for tests.
func NewPolicy(session Reinitializer, clk clock.Clock, delay time.Duration, onReport func(Report)) *Policy {
	if clk == nil {
		clk = clock.Real{}
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &Policy{
		session:  session,
		clk:      clk,
		delay:    delay,
		onReport: onReport,
		log:      util.Logger("recovery"),
	}
}

// HandleSignalError classifies a signaling failure. Retryable kinds
// schedule exactly one delayed reinitialize; further retryable errors
// arriving while that reinitialize is pending coalesce into it. Terminal
// kinds are reported and never retried.
func (p *Policy) HandleSignalError(identity string, st call.State, kind signalmsg.ErrorKind, detail string) {
	if Classify(kind) == Terminal {
		p.log.WithFields(logrus.Fields{"identity": identity, "kind": kind}).Error("terminal signaling error")
		p.report(Report{Identity: identity, CallState: st, Kind: kind, Detail: detail})
		return
	}

	p.mu.Lock()
	if p.stopped || p.pending != nil {
		coalesced := p.pending != nil
		p.mu.Unlock()
		if coalesced {
			p.log.WithField("kind", kind).Debug("retry already pending, coalescing")
		}
		return
	}
	p.pending = p.clk.AfterFunc(p.delay, func() {
		p.mu.Lock()
		p.pending = nil
		stopped := p.stopped
		p.mu.Unlock()
		if stopped {
			return
		}
		p.log.Info("reinitializing signaling session")
		if err := p.session.Reinitialize(context.Background()); err != nil {
			p.report(Report{
				Identity:  identity,
				CallState: st,
				Kind:      signalmsg.KindServer,
				Err:       err,
				Detail:    fmt.Sprintf("reinitialize after %s failed: %v", kind, err),
			})
		}
	})
	p.mu.Unlock()
	p.log.WithFields(logrus.Fields{"identity": identity, "kind": kind, "delay": p.delay}).Warn("scheduling session reinitialize")
}

// HandleMediaError reports a capture failure. Terminal for the dial or
// answer attempt that hit it; the session identity is left alone.
func (p *Policy) HandleMediaError(identity string, st call.State, err error) {
	p.report(Report{
		Identity:  identity,
		CallState: st,
		Kind:      "",
		Err:       err,
		Detail:    fmt.Sprintf("media acquisition failed: %v", err),
	})
}

// HandleCallFailure reacts to a mid-call failure. The controller has
// already torn the call down as Failed; the policy reinitializes the
// session immediately so a clean identity is available, then reports.
func (p *Policy) HandleCallFailure(identity string, st call.State, err error) {
	p.log.WithFields(logrus.Fields{"identity": identity, "state": st}).WithError(err).Warn("call failed, reinitializing session")
	if rerr := p.session.Reinitialize(context.Background()); rerr != nil {
		p.report(Report{
			Identity:  identity,
			CallState: st,
			Kind:      signalmsg.KindServer,
			Err:       rerr,
			Detail:    fmt.Sprintf("reinitialize after call failure failed: %v", rerr),
		})
	}
	p.report(Report{
		Identity:  identity,
		CallState: st,
		Err:       err,
		Detail:    fmt.Sprintf("call failed: %v", err),
	})
}

// Stop cancels any pending reinitialize. Further errors are ignored.
func (p *Policy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}

// RetryPending reports whether a reinitialize is currently scheduled.
func (p *Policy) RetryPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

func (p *Policy) report(r Report) {
	if p.onReport != nil {
		p.onReport(r)
	}
}
