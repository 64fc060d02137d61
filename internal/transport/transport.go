// Package transport provides the reliable, ordered byte-stream sessions that
// packets travel over: plain TCP, WebSocket, and WebRTC DataChannels
// negotiated over WebSocket signaling.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Network names accepted by New.
const (
	NetworkTCP       = "tcp"
	NetworkWebSocket = "ws"
	NetworkWebRTC    = "webrtc"
)

// Tuning defaults.
const (
	DefaultReceiveBufferSize        = 8 * 1024  // stream sessions
	DefaultMessageReceiveBufferSize = 64 * 1024 // message-oriented sessions
	DefaultDialTimeout              = 10 * time.Second
	DefaultWebSocketPath            = "/ws"
)

var (
	ErrClosed         = errors.New("transport: closed")
	ErrUnknownNetwork = errors.New("transport: unknown network")
)

// Session is one established, exclusively owned byte-stream connection.
type Session interface {
	io.ReadWriteCloser
	// ReceiveBufferSize is the largest read the session expects to serve.
	ReceiveBufferSize() int
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Acceptor yields inbound sessions until it is closed. Accept returns an
// error satisfying IsClosed once Close has been called.
type Acceptor interface {
	Accept() (Session, error)
	Close() error
	Addr() net.Addr
}

// Network binds acceptors and dials sessions for one transport flavor.
type Network interface {
	Name() string
	Listen(ctx context.Context, addr string) (Acceptor, error)
	Dial(ctx context.Context, addr string) (Session, error)
}

// Options configure the networks built by New. Zero values pick defaults.
type Options struct {
	ReceiveBufferSize int
	DialTimeout       time.Duration
	WebSocketPath     string
	ICEServers        []string
	IncludeLoopback   bool
}

// New returns the Network registered under name.
func New(name string, opts Options) (Network, error) {
	switch name {
	case "", NetworkTCP:
		return &TCP{ReceiveBufferSize: opts.ReceiveBufferSize, DialTimeout: opts.DialTimeout}, nil
	case NetworkWebSocket:
		return &WebSocket{
			Path:              opts.WebSocketPath,
			ReceiveBufferSize: opts.ReceiveBufferSize,
			DialTimeout:       opts.DialTimeout,
		}, nil
	case NetworkWebRTC:
		return &WebRTC{
			SignalingPath:     opts.WebSocketPath,
			ICEServers:        opts.ICEServers,
			IncludeLoopback:   opts.IncludeLoopback,
			ReceiveBufferSize: opts.ReceiveBufferSize,
			ConnectTimeout:    opts.DialTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}

// IsClosed reports whether err means the local side already closed the
// session or acceptor.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// IsDisconnect reports whether err means the session is gone: orderly peer
// shutdown, a reset, a broken pipe, or a local close.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if IsClosed(err) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
