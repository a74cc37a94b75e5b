// Package call drives the state machine for the single active call:
// outgoing dial, incoming answer, remote stream arrival, and teardown.
package call

import "fmt"

// State is a call lifecycle state.
//
//	Idle → Dialing|Ringing → Answered → Streaming → Ended
//
// plus the terminal Failed. A new call may only be created from Idle,
// Ended, or Failed.
type State int

const (
	StateIdle State = iota
	StateDialing
	StateRinging
	StateAnswered
	StateStreaming
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDialing:
		return "Dialing"
	case StateRinging:
		return "Ringing"
	case StateAnswered:
		return "Answered"
	case StateStreaming:
		return "Streaming"
	case StateEnded:
		return "Ended"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether the state permits creating a new call.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateEnded || s == StateFailed
}

// Direction records which side initiated the call.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// ShouldInitiate is the tie-break rule for two peers that learn about each
// other simultaneously: the side whose identity compares lexicographically
// greater places the call, the other waits. Both sides applying the rule
// yields exactly one dial.
func ShouldInitiate(local, remote string) bool {
	return local > remote
}
