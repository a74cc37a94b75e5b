package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shivaprasad369/pocky/internal/call"
	"github.com/shivaprasad369/pocky/internal/clock"
	"github.com/shivaprasad369/pocky/internal/signalmsg"
)

// countingSession records reinitializations.
type countingSession struct {
	count int
	err   error
}

func (c *countingSession) Reinitialize(context.Context) error {
	c.count++
	return c.err
}

func newTestPolicy(t *testing.T) (*Policy, *countingSession, *clock.Fake, *[]Report) {
	t.Helper()
	session := &countingSession{}
	fake := clock.NewFake()
	var reports []Report
	p := NewPolicy(session, fake, 2*time.Second, func(r Report) {
		reports = append(reports, r)
	})
	return p, session, fake, &reports
}

// TestClassify pins the outcome table.
func TestClassify(t *testing.T) {
	testCases := []struct {
		kind signalmsg.ErrorKind
		want Outcome
	}{
		{signalmsg.KindPeerUnavailable, Retryable},
		{signalmsg.KindNetwork, Retryable},
		{signalmsg.KindSocket, Retryable},
		{signalmsg.KindServer, Terminal},
	}
	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.kind))
		})
	}
}

// TestRetryableSchedulesSingleReinitialize verifies the delayed retry:
// nothing happens before the delay, exactly one reinitialize after it.
func TestRetryableSchedulesSingleReinitialize(t *testing.T) {
	p, session, fake, reports := newTestPolicy(t)

	p.HandleSignalError("abc123", call.StateIdle, signalmsg.KindNetwork, "connection reset")
	require.True(t, p.RetryPending())
	require.Zero(t, session.count, "reinitialize must not fire before the delay")

	fake.Advance(1 * time.Second)
	require.Zero(t, session.count)

	fake.Advance(1 * time.Second)
	require.Equal(t, 1, session.count)
	require.False(t, p.RetryPending())
	require.Empty(t, *reports, "a successful retry is not user-visible")
}

// TestErrorsCoalesceWhileRetryPending verifies a second retryable error
// arriving before the delay elapses folds into the pending cycle.
func TestErrorsCoalesceWhileRetryPending(t *testing.T) {
	p, session, fake, _ := newTestPolicy(t)

	p.HandleSignalError("abc123", call.StateIdle, signalmsg.KindNetwork, "first")
	fake.Advance(500 * time.Millisecond)
	p.HandleSignalError("abc123", call.StateIdle, signalmsg.KindSocket, "second")
	p.HandleSignalError("abc123", call.StateIdle, signalmsg.KindPeerUnavailable, "third")

	fake.Advance(5 * time.Second)
	require.Equal(t, 1, session.count, "coalesced errors share one reinitialize")

	// A fresh error after the cycle completed starts a new one.
	p.HandleSignalError("def456", call.StateIdle, signalmsg.KindNetwork, "later")
	fake.Advance(2 * time.Second)
	require.Equal(t, 2, session.count)
}

// TestTerminalErrorReportsWithoutRetry verifies terminal kinds are
// reported upward, carrying identity and call state, and never retried.
func TestTerminalErrorReportsWithoutRetry(t *testing.T) {
	p, session, fake, reports := newTestPolicy(t)

	p.HandleSignalError("abc123", call.StateDialing, signalmsg.KindServer, "invalid key")
	require.False(t, p.RetryPending())

	fake.Advance(time.Minute)
	require.Zero(t, session.count)
	require.Len(t, *reports, 1)
	require.Equal(t, "abc123", (*reports)[0].Identity)
	require.Equal(t, call.StateDialing, (*reports)[0].CallState)
	require.Equal(t, signalmsg.KindServer, (*reports)[0].Kind)
}

// TestMediaErrorNeverReinitializes verifies capture failures are reported
// but leave the session alone.
func TestMediaErrorNeverReinitializes(t *testing.T) {
	p, session, fake, reports := newTestPolicy(t)

	p.HandleMediaError("abc123", call.StateIdle, errors.New("permission denied"))
	fake.Advance(time.Minute)

	require.Zero(t, session.count)
	require.False(t, p.RetryPending())
	require.Len(t, *reports, 1)
}

// TestCallFailureReinitializesImmediately verifies a mid-call failure
// produces an immediate reinitialize plus a report.
func TestCallFailureReinitializesImmediately(t *testing.T) {
	p, session, _, reports := newTestPolicy(t)

	p.HandleCallFailure("abc123", call.StateStreaming, errors.New("transport died"))

	require.Equal(t, 1, session.count)
	require.Len(t, *reports, 1)
	require.Equal(t, call.StateStreaming, (*reports)[0].CallState)
}

// TestStopCancelsPendingRetry verifies Stop kills the scheduled
// reinitialize and silences later errors.
func TestStopCancelsPendingRetry(t *testing.T) {
	p, session, fake, _ := newTestPolicy(t)

	p.HandleSignalError("abc123", call.StateIdle, signalmsg.KindNetwork, "reset")
	require.True(t, p.RetryPending())

	p.Stop()
	require.False(t, p.RetryPending())
	fake.Advance(time.Minute)
	require.Zero(t, session.count)

	p.HandleSignalError("abc123", call.StateIdle, signalmsg.KindNetwork, "again")
	fake.Advance(time.Minute)
	require.Zero(t, session.count)
}
