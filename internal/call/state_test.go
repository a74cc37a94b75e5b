package call

import "testing"

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateDialing, "Dialing"},
		{StateRinging, "Ringing"},
		{StateAnswered, "Answered"},
		{StateStreaming, "Streaming"},
		{StateEnded, "Ended"},
		{StateFailed, "Failed"},
		{State(42), "State(42)"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("State(%d).String() = %q, want %q", int(c.state), got, c.want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := map[State]bool{
		StateIdle:      true,
		StateDialing:   false,
		StateRinging:   false,
		StateAnswered:  false,
		StateStreaming: false,
		StateEnded:     true,
		StateFailed:    true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

// TestShouldInitiate verifies the dial tie-break: applied on both sides it
// selects exactly one initiator.
func TestShouldInitiate(t *testing.T) {
	a, b := "aaaa1111", "zzzz9999"

	if ShouldInitiate(a, b) {
		t.Errorf("ShouldInitiate(%q, %q) = true, want false", a, b)
	}
	if !ShouldInitiate(b, a) {
		t.Errorf("ShouldInitiate(%q, %q) = false, want true", b, a)
	}
	if ShouldInitiate(a, b) == ShouldInitiate(b, a) {
		t.Error("tie-break selected both sides (or neither) as initiator")
	}
}
