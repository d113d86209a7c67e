package signaling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pullpipe/internal/config"
)

// ErrServerClosed is returned by Accept after Close.
var ErrServerClosed = errors.New("signaling server closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Incoming is one sender that completed the WebSocket upgrade.
type Incoming struct {
	WS        *websocket.Conn
	Transport config.Transport // what the sender asked for via ?transport=
	Peer      string           // remote address
}

// Server is the receiver-side WebSocket endpoint. Every sender connects to
// /ws; the connection is then either used directly for packets or only for
// negotiating a DataChannel.
type Server struct {
	addr     string
	pin      string
	mux      *http.ServeMux
	httpSrv  *http.Server
	listener net.Listener
	incoming chan Incoming

	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer creates a server that will listen on addr. An empty pin
// disables the PIN check.
func NewServer(addr, pin string) *Server {
	s := &Server{
		addr:     addr,
		pin:      pin,
		mux:      http.NewServeMux(),
		incoming: make(chan Incoming),
		closed:   make(chan struct{}),
	}
	s.mux.HandleFunc("/ws", s.handleWS)
	return s
}

// Handle registers an extra HTTP endpoint. Call before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start begins listening. Returns the bound address (useful with port 0).
func (s *Server) Start() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		_ = s.httpSrv.Serve(listener)
	}()

	return listener.Addr(), nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if s.pin != "" && q.Get("pin") != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	tr := config.TransportWS
	switch t := config.Transport(q.Get("transport")); t {
	case "", config.TransportWS:
	case config.TransportWebRTC:
		tr = t
	default:
		http.Error(w, "Unknown transport", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Hand off to Accept; the handler goroutine waits until someone takes it.
	select {
	case s.incoming <- Incoming{WS: conn, Transport: tr, Peer: r.RemoteAddr}:
	case <-s.closed:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
	}
}

// Accept blocks until a sender connects, the server is closed, or ctx is
// cancelled.
func (s *Server) Accept(ctx context.Context) (Incoming, error) {
	select {
	case in := <-s.incoming:
		return in, nil
	case <-s.closed:
		return Incoming{}, ErrServerClosed
	case <-ctx.Done():
		return Incoming{}, ctx.Err()
	}
}

// Close stops accepting connections. Upgraded connections already handed
// out are not affected.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.httpSrv != nil {
			err = s.httpSrv.Close()
		}
	})
	return err
}

// Dial connects to a receiver's /ws endpoint.
func Dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.ReadBufferSize = 64 * 1024
	dialer.WriteBufferSize = 64 * 1024
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w (HTTP %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return conn, nil
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
