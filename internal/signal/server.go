package signal

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shivaprasad369/pocky/internal/signalmsg"
	"github.com/shivaprasad369/pocky/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// peerConn is one registered client with serialized writes.
type peerConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peerConn) write(msg signalmsg.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(msg)
}

// Server is the rendezvous service: clients announce an identity on
// connect, after which envelopes addressed to a registered identity are
// forwarded verbatim. Unknown destinations earn an error/peer-unavailable
// reply; SDP and ICE payloads are never inspected.
type Server struct {
	log      *logrus.Entry
	listener net.Listener

	mu    sync.Mutex
	peers map[string]*peerConn
}

// NewServer creates an empty rendezvous server.
func NewServer() *Server {
	return &Server{
		log:   util.Logger("rendezvous"),
		peers: make(map[string]*peerConn),
	}
}

// Start begins listening on addr (":0" picks a random port). Returns the
// bound port.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start rendezvous server: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	s.log.WithField("port", port).Info("rendezvous server listening")
	return port, nil
}

// Close shuts down the listener. Established connections keep running
// until their clients disconnect.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// Peers returns the currently registered identities.
func (s *Server) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.peers))
	for id := range s.peers {
		out = append(out, id)
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Registration: the first message must announce an identity.
	var open signalmsg.Message
	if err := conn.ReadJSON(&open); err != nil || open.Type != signalmsg.TypeOpen || open.Src == "" {
		conn.WriteJSON(signalmsg.Message{
			Type: signalmsg.TypeError,
			Kind: signalmsg.KindServer,
			Text: "expected open message with identity",
		})
		conn.Close()
		return
	}
	identity := open.Src
	pc := &peerConn{conn: conn}

	s.mu.Lock()
	if _, taken := s.peers[identity]; taken {
		s.mu.Unlock()
		pc.write(signalmsg.Message{
			Type: signalmsg.TypeError,
			Kind: signalmsg.KindServer,
			Text: fmt.Sprintf("identity %q already registered", identity),
		})
		conn.Close()
		return
	}
	s.peers[identity] = pc
	s.mu.Unlock()

	pc.write(signalmsg.Message{Type: signalmsg.TypeOpen, Dst: identity})
	s.log.WithField("identity", identity).Info("peer registered")

	defer func() {
		s.mu.Lock()
		delete(s.peers, identity)
		s.mu.Unlock()
		conn.Close()
		s.log.WithField("identity", identity).Info("peer disconnected")
	}()

	for {
		var msg signalmsg.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		// The server, not the client, is authoritative about the source.
		msg.Src = identity

		s.mu.Lock()
		dst, ok := s.peers[msg.Dst]
		s.mu.Unlock()

		if !ok {
			pc.write(signalmsg.Message{
				Type: signalmsg.TypeError,
				Kind: signalmsg.KindPeerUnavailable,
				Text: fmt.Sprintf("peer %q is not connected", msg.Dst),
			})
			continue
		}
		if err := dst.write(msg); err != nil {
			s.log.WithField("dst", msg.Dst).WithError(err).Warn("forward failed")
		}
	}
}
