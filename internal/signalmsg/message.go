// Package signalmsg defines the JSON envelope exchanged with the rendezvous
// server. Envelopes are routed by destination identity; SDP and ICE payloads
// pass through the server opaquely.
package signalmsg

// Type identifies the kind of signaling message.
type Type string

const (
	// TypeOpen announces an identity to the server; the server echoes it
	// back as the registration ack.
	TypeOpen Type = "open"
	// TypeOffer carries an SDP offer to the destination peer.
	TypeOffer Type = "offer"
	// TypeAnswer carries an SDP answer back to the offerer.
	TypeAnswer Type = "answer"
	// TypeCandidate carries a trickled ICE candidate.
	TypeCandidate Type = "candidate"
	// TypeLeave tells the destination peer the call is over.
	TypeLeave Type = "leave"
	// TypeError is sent by the server when routing or registration fails.
	TypeError Type = "error"
)

// ErrorKind classifies a signaling failure.
type ErrorKind string

const (
	KindPeerUnavailable ErrorKind = "peer-unavailable"
	KindNetwork         ErrorKind = "network"
	KindSocket          ErrorKind = "socket"
	KindServer          ErrorKind = "server"
)

// Retryable reports whether a failure of this kind may be resolved by
// reinitializing the session. Server-side faults are terminal.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindPeerUnavailable, KindNetwork, KindSocket:
		return true
	}
	return false
}

// Message is the JSON structure exchanged over the WebSocket.
type Message struct {
	Type      Type      `json:"type"`
	Src       string    `json:"src,omitempty"`
	Dst       string    `json:"dst,omitempty"`
	SDP       string    `json:"sdp,omitempty"`
	Candidate string    `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
	Kind      ErrorKind `json:"kind,omitempty"`
	Text      string    `json:"text,omitempty"` // human-readable error detail
}
