package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCP is the plain stream network.
type TCP struct {
	ReceiveBufferSize int
	DialTimeout       time.Duration
}

func (t *TCP) Name() string { return NetworkTCP }

func (t *TCP) bufferSize() int {
	return orDefault(t.ReceiveBufferSize, DefaultReceiveBufferSize)
}

// Listen binds addr. Use ":0" or "127.0.0.1:0" for an ephemeral port.
func (t *TCP) Listen(ctx context.Context, addr string) (Acceptor, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &tcpAcceptor{listener: listener, size: t.bufferSize()}, nil
}

// Dial connects to addr.
func (t *TCP) Dial(ctx context.Context, addr string) (Session, error) {
	dialer := net.Dialer{Timeout: orDefault(t.DialTimeout, DefaultDialTimeout)}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewStreamSession(conn, t.bufferSize()), nil
}

type tcpAcceptor struct {
	listener net.Listener
	size     int
}

func (a *tcpAcceptor) Accept() (Session, error) {
	conn, err := a.listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewStreamSession(conn, a.size), nil
}

func (a *tcpAcceptor) Close() error   { return a.listener.Close() }
func (a *tcpAcceptor) Addr() net.Addr { return a.listener.Addr() }

// StreamSession adapts any net.Conn into a Session.
type StreamSession struct {
	net.Conn
	size int
}

// NewStreamSession wraps conn. TCP connections get Nagle disabled, keepalive
// enabled, and SO_RCVBUF sized to size so one read can hold a whole
// envelope.
func NewStreamSession(conn net.Conn, size int) *StreamSession {
	size = orDefault(size, DefaultReceiveBufferSize)
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
		tcpConn.SetReadBuffer(size)
	}
	return &StreamSession{Conn: conn, size: size}
}

func (s *StreamSession) ReceiveBufferSize() int { return s.size }
