package signal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/shivaprasad369/pocky/internal/signalmsg"
)

// startServer runs an in-process rendezvous server for the test.
func startServer(t *testing.T) string {
	t.Helper()
	srv := NewServer()
	port, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

// TestNewIdentityShape verifies identities are short, printable, and not
// repeated.
func TestNewIdentityShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewIdentity()
		require.Len(t, id, 8)
		require.False(t, seen[id], "identity %q repeated", id)
		seen[id] = true
	}
}

// TestInitializeReachesReady verifies the register handshake: identity
// returned, status Ready, OnReady fired.
func TestInitializeReachesReady(t *testing.T) {
	url := startServer(t)

	ready := make(chan string, 1)
	s := NewSession(Config{ServerURL: url}, Handlers{
		OnReady: func(id string) { ready <- id },
	})
	defer s.Destroy()

	id, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, s.Identity())
	require.Equal(t, StatusReady, s.Status())
	require.Equal(t, id, waitFor(t, ready, "OnReady"))
}

// TestOfferRoutesBetweenSessions verifies an offer sent to a registered
// identity arrives as an incoming-call event carrying the sender.
func TestOfferRoutesBetweenSessions(t *testing.T) {
	url := startServer(t)

	type incoming struct {
		remote string
		offer  webrtc.SessionDescription
	}
	calls := make(chan incoming, 1)

	callee := NewSession(Config{ServerURL: url}, Handlers{
		OnIncomingCall: func(remote string, offer webrtc.SessionDescription) {
			calls <- incoming{remote, offer}
		},
	})
	defer callee.Destroy()
	calleeID, err := callee.Initialize(context.Background())
	require.NoError(t, err)

	caller := NewSession(Config{ServerURL: url}, Handlers{})
	defer caller.Destroy()
	callerID, err := caller.Initialize(context.Background())
	require.NoError(t, err)

	require.NoError(t, caller.Send(signalmsg.Message{
		Type: signalmsg.TypeOffer,
		Dst:  calleeID,
		SDP:  "v=0 fake offer",
	}))

	got := waitFor(t, calls, "incoming call")
	require.Equal(t, callerID, got.remote)
	require.Equal(t, webrtc.SDPTypeOffer, got.offer.Type)
	require.Equal(t, "v=0 fake offer", got.offer.SDP)
}

// TestPeerUnavailableSurfacesError verifies sending to an unknown identity
// produces a classified, retryable error event.
func TestPeerUnavailableSurfacesError(t *testing.T) {
	url := startServer(t)

	errs := make(chan signalmsg.ErrorKind, 1)
	s := NewSession(Config{ServerURL: url}, Handlers{
		OnError: func(kind signalmsg.ErrorKind, detail string) { errs <- kind },
	})
	defer s.Destroy()
	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Send(signalmsg.Message{
		Type: signalmsg.TypeOffer,
		Dst:  "nobody-home",
		SDP:  "v=0",
	}))

	kind := waitFor(t, errs, "error event")
	require.Equal(t, signalmsg.KindPeerUnavailable, kind)
	require.True(t, kind.Retryable())
}

// TestReinitializeRotatesIdentity verifies reinitialization produces a
// fresh identity, counts the attempt, and lands back in Ready.
func TestReinitializeRotatesIdentity(t *testing.T) {
	url := startServer(t)

	s := NewSession(Config{ServerURL: url}, Handlers{})
	defer s.Destroy()

	first, err := s.Initialize(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Reinitialize(context.Background()))
	second := s.Identity()
	require.NotEqual(t, first, second, "reinitialization must rotate the identity")
	require.Equal(t, StatusReady, s.Status())
	require.Equal(t, 1, s.Attempt())
}

// TestDestroyIsTerminalAndIdempotent verifies Destroy can be called twice
// and blocks any further initialization.
func TestDestroyIsTerminalAndIdempotent(t *testing.T) {
	url := startServer(t)

	s := NewSession(Config{ServerURL: url}, Handlers{})
	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	s.Destroy()
	s.Destroy()
	require.Equal(t, StatusClosed, s.Status())

	_, err = s.Initialize(context.Background())
	require.ErrorIs(t, err, ErrDestroyed)
	require.ErrorIs(t, s.Reinitialize(context.Background()), ErrDestroyed)
}

// TestInitializeAgainstDeadServer verifies the failure is classified as a
// network error carrying the identity it happened under.
func TestInitializeAgainstDeadServer(t *testing.T) {
	s := NewSession(Config{ServerURL: "ws://127.0.0.1:1/ws"}, Handlers{})
	_, err := s.Initialize(context.Background())
	require.Error(t, err)

	var serr *SessionError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, signalmsg.KindNetwork, serr.Kind)
	require.NotEmpty(t, serr.Identity)
	require.Equal(t, StatusDegraded, s.Status())
}

// TestServerRejectsDuplicateIdentity drives the server with a raw
// websocket client to claim an identity twice.
func TestServerRejectsDuplicateIdentity(t *testing.T) {
	url := startServer(t)

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		return conn
	}
	register := func(conn *websocket.Conn, id string) signalmsg.Message {
		require.NoError(t, conn.WriteJSON(signalmsg.Message{Type: signalmsg.TypeOpen, Src: id}))
		var reply signalmsg.Message
		require.NoError(t, conn.ReadJSON(&reply))
		return reply
	}

	first := dial()
	defer first.Close()
	require.Equal(t, signalmsg.TypeOpen, register(first, "twin").Type)

	second := dial()
	defer second.Close()
	reply := register(second, "twin")
	require.Equal(t, signalmsg.TypeError, reply.Type)
	require.Equal(t, signalmsg.KindServer, reply.Kind)
}
