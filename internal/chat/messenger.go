// Package chat provides the reliable, ordered text channel riding the
// active call, and the append-only message log behind it.
package chat

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/shivaprasad369/pocky/internal/util"
)

var (
	// ErrChannelNotOpen is returned by Send while the channel is not
	// open. There is no implicit buffering: the caller sees the failure
	// and decides what to do with the message.
	ErrChannelNotOpen = errors.New("data channel not open")
	// ErrNoChannel is returned when no channel is bound at all.
	ErrNoChannel = errors.New("no data channel bound")
)

// LinkState is the channel lifecycle state.
type LinkState int

const (
	LinkOpening LinkState = iota
	LinkOpen
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkOpening:
		return "Opening"
	case LinkOpen:
		return "Open"
	case LinkClosed:
		return "Closed"
	}
	return fmt.Sprintf("LinkState(%d)", int(s))
}

// Sender identifies which side of the call produced a message.
type Sender int

const (
	SenderLocal Sender = iota
	SenderRemote
)

func (s Sender) String() string {
	if s == SenderRemote {
		return "remote"
	}
	return "local"
}

// Message is one chat entry. Seq is the insertion order in the log.
type Message struct {
	Text   string
	Sender Sender
	Seq    int
}

// Log is the append-only ordered message sequence for one call. Messages
// are never mutated or reordered.
type Log struct {
	mu   sync.Mutex
	msgs []Message
}

func (l *Log) append(text string, sender Sender) Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := Message{Text: text, Sender: sender, Seq: len(l.msgs)}
	l.msgs = append(l.msgs, m)
	return m
}

// Messages returns a snapshot of the log in insertion order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Clear drops the history, typically when a new call starts.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
}

// Channel is the slice of the data-channel API the messenger uses.
// *webrtc.DataChannel satisfies it; tests substitute a fake.
type Channel interface {
	OnOpen(f func())
	OnClose(f func())
	OnMessage(f func(msg webrtc.DataChannelMessage))
	SendText(s string) error
	Close() error
}

var _ Channel = (*webrtc.DataChannel)(nil)

// Messenger binds the call's chat channel and mediates sends and inbound
// delivery. One channel exists per call; Bind replaces any previous one.
type Messenger struct {
	log *logrus.Entry

	mu        sync.Mutex
	remote    string
	ch        Channel
	state     LinkState
	gen       uint64 // bind generation; callbacks from replaced channels self-cancel
	history   *Log
	onMessage func(Message)
}

// NewMessenger creates a Messenger with an empty log.
func NewMessenger() *Messenger {
	return &Messenger{
		log:     util.Logger("chat"),
		state:   LinkClosed,
		history: &Log{},
	}
}

// OnMessage registers the delivery callback, invoked for every appended
// message, local and remote.
func (m *Messenger) OnMessage(fn func(Message)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// Bind attaches the messenger to the chat channel of a new call and clears
// the previous call's history. The channel may still be opening; Send
// fails until it reports open.
func (m *Messenger) Bind(remote string, ch Channel) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.remote = remote
	m.ch = ch
	m.state = LinkOpening
	m.history.Clear()
	m.mu.Unlock()

	ch.OnOpen(func() {
		m.mu.Lock()
		if m.gen == gen {
			m.state = LinkOpen
			m.log.WithField("remote", remote).Info("chat channel open")
		}
		m.mu.Unlock()
	})
	ch.OnClose(func() {
		m.mu.Lock()
		if m.gen == gen {
			m.state = LinkClosed
		}
		m.mu.Unlock()
	})
	ch.OnMessage(func(msg webrtc.DataChannelMessage) {
		m.mu.Lock()
		stale := m.gen != gen
		fn := m.onMessage
		m.mu.Unlock()
		if stale {
			return
		}
		entry := m.history.append(string(msg.Data), SenderRemote)
		if fn != nil {
			fn(entry)
		}
	})
}

// Send delivers text to the peer and appends it to the log with
// Sender=Local. Fails observably when the channel is absent or not open.
func (m *Messenger) Send(text string) error {
	m.mu.Lock()
	ch := m.ch
	state := m.state
	fn := m.onMessage
	m.mu.Unlock()

	if ch == nil {
		return ErrNoChannel
	}
	if state != LinkOpen {
		return ErrChannelNotOpen
	}
	if err := ch.SendText(text); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	entry := m.history.append(text, SenderLocal)
	if fn != nil {
		fn(entry)
	}
	return nil
}

// Close shuts the channel down. Idempotent; further Sends fail.
func (m *Messenger) Close() {
	m.mu.Lock()
	ch := m.ch
	m.state = LinkClosed
	m.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

// State returns the channel state.
func (m *Messenger) State() LinkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Remote returns the identity the channel is bound to.
func (m *Messenger) Remote() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

// History returns the append-only log for the current call.
func (m *Messenger) History() *Log {
	return m.history
}
