package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsAcceptBacklog = 16
	wsCloseTimeout  = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket carries each write as one binary WebSocket message, so a read
// never splits or merges envelopes.
type WebSocket struct {
	Path              string
	ReceiveBufferSize int
	DialTimeout       time.Duration
}

func (w *WebSocket) Name() string { return NetworkWebSocket }

func (w *WebSocket) path() string {
	return orDefault(w.Path, DefaultWebSocketPath)
}

func (w *WebSocket) bufferSize() int {
	return orDefault(w.ReceiveBufferSize, DefaultMessageReceiveBufferSize)
}

// Listen starts an HTTP server on addr that upgrades requests on Path.
func (w *WebSocket) Listen(ctx context.Context, addr string) (Acceptor, error) {
	return w.listen(ctx, addr)
}

func (w *WebSocket) listen(ctx context.Context, addr string) (*wsAcceptor, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server on %s: %w", addr, err)
	}

	a := &wsAcceptor{
		listener: listener,
		size:     w.bufferSize(),
		conns:    make(chan *wsSession, wsAcceptBacklog),
		done:     make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.path(), a.handleWS)
	a.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		_ = a.srv.Serve(listener)
	}()

	return a, nil
}

// Dial connects to addr, which is either a host:port or a full ws:// or
// wss:// URL.
func (w *WebSocket) Dial(ctx context.Context, addr string) (Session, error) {
	conn, err := w.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return newWSSession(conn, w.bufferSize()), nil
}

func (w *WebSocket) dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: orDefault(w.DialTimeout, DefaultDialTimeout),
	}
	url := w.url(addr)
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server %s: %w", url, err)
	}
	return conn, nil
}

func (w *WebSocket) url(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + w.path()
}

type wsAcceptor struct {
	listener  net.Listener
	srv       *http.Server
	size      int
	conns     chan *wsSession
	done      chan struct{}
	closeOnce sync.Once
}

func (a *wsAcceptor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := newWSSession(conn, a.size)
	select {
	case a.conns <- s:
		// Close may have drained the backlog just before this send.
		select {
		case <-a.done:
			a.drain()
		default:
		}
	case <-a.done:
		s.Close()
	}
}

func (a *wsAcceptor) Accept() (Session, error) {
	s, err := a.accept()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *wsAcceptor) accept() (*wsSession, error) {
	select {
	case <-a.done:
		return nil, ErrClosed
	default:
	}
	select {
	case s := <-a.conns:
		return s, nil
	case <-a.done:
		return nil, ErrClosed
	}
}

// Close stops the HTTP server and closes upgraded sessions nobody accepted.
// Sessions already returned by Accept are hijacked and stay open.
func (a *wsAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.srv.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		a.drain()
	})
	return err
}

func (a *wsAcceptor) drain() {
	for {
		select {
		case s := <-a.conns:
			s.Close()
		default:
			return
		}
	}
}

func (a *wsAcceptor) Addr() net.Addr { return a.listener.Addr() }

// wsSession adapts a message-oriented WebSocket into a Session. A message
// larger than the caller's buffer is served across consecutive reads.
type wsSession struct {
	conn *websocket.Conn
	size int

	rmu     sync.Mutex
	pending []byte

	wmu       sync.Mutex
	closeOnce sync.Once
}

func newWSSession(conn *websocket.Conn, size int) *wsSession {
	return &wsSession{conn: conn, size: size}
}

func (s *wsSession) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	if len(s.pending) == 0 {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		s.pending = msg
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *wsSession) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal-closure frame (best effort) and closes the socket.
func (s *wsSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsCloseTimeout))
		err = s.conn.Close()
	})
	return err
}

func (s *wsSession) ReceiveBufferSize() int { return s.size }
func (s *wsSession) LocalAddr() net.Addr    { return s.conn.LocalAddr() }
func (s *wsSession) RemoteAddr() net.Addr   { return s.conn.RemoteAddr() }
