package link

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/1ureka/pktlink/internal/transport"
	"github.com/1ureka/pktlink/internal/util"
)

// Listener accepts sessions on a network address and hands each one to the
// OnConnection subscribers as a Connection. It keeps no reference to the
// Connections it emits.
type Listener struct {
	network transport.Network
	addr    string
	opts    Options

	mu       sync.Mutex
	state    ListenerState
	closed   bool
	acceptor transport.Acceptor
	cancel   context.CancelFunc
	loopDone chan struct{}

	errMu sync.Mutex
	err   error

	onConnection handlers[*Connection]
}

func NewListener(network transport.Network, addr string, opts Options) *Listener {
	return &Listener{network: network, addr: addr, opts: opts}
}

// OnConnection subscribes fn to accepted connections. Each connection is
// dispatched on its own goroutine and its receive loop starts after every
// subscriber has returned.
func (l *Listener) OnConnection(fn func(*Connection)) func() {
	return l.onConnection.add(fn)
}

// Start binds the address (if not already bound) and launches the accept
// loop. Starting a listening Listener is a no-op.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListenerClosed
	}
	if l.state == ListenerListening {
		return nil
	}

	if l.acceptor == nil {
		a, err := l.network.Listen(context.Background(), l.addr)
		if err != nil {
			return fmt.Errorf("listen %s over %s: %w", l.addr, l.network.Name(), err)
		}
		l.acceptor = a
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.loopDone = make(chan struct{})
	l.state = ListenerListening
	l.setErr(nil)

	util.LogSuccess("listening on %s over %s", l.acceptor.Addr(), l.network.Name())
	go l.acceptLoop(ctx, l.acceptor, l.loopDone)
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context, a transport.Acceptor, done chan struct{}) {
	defer close(done)

	for {
		s, err := a.Accept()
		if err != nil {
			if ctx.Err() != nil || transport.IsClosed(err) {
				return
			}
			l.setErr(err)
			util.LogError("accept on %s failed, listener stopped accepting: %v", a.Addr(), err)
			return
		}

		conn := newConnection(s, l.opts)
		go l.dispatch(conn)
	}
}

func (l *Listener) dispatch(conn *Connection) {
	l.onConnection.emit(conn)
	conn.start()
}

// Stop closes the bound socket and waits for the accept loop to exit.
// Connections already accepted are left running. Start may be called again.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.state != ListenerListening {
		l.mu.Unlock()
		return nil
	}

	l.cancel()
	err := l.acceptor.Close()
	addr := l.acceptor.Addr()
	l.acceptor = nil
	l.state = ListenerStopped
	done := l.loopDone
	l.mu.Unlock()

	<-done
	util.LogInfo("stopped listening on %s", addr)
	return err
}

// Close stops the listener and releases it for good. Later calls to Start
// fail with ErrListenerClosed.
func (l *Listener) Close() error {
	err := l.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.state = ListenerStopped
	return err
}

// State reports whether the listener is accepting.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Addr is the bound address while listening, nil otherwise.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acceptor == nil {
		return nil
	}
	return l.acceptor.Addr()
}

// Err returns the error that ended the accept loop, if it ended on its own.
func (l *Listener) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *Listener) setErr(err error) {
	l.errMu.Lock()
	l.err = err
	l.errMu.Unlock()
}
