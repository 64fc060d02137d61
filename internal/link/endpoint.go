package link

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/pktlink/internal/protocol"
	"github.com/1ureka/pktlink/internal/transport"
	"github.com/1ureka/pktlink/internal/util"
)

// endpoint is the part shared by Connection and Client: one session, one
// receive loop, one writer and the subscriber lists.
type endpoint struct {
	id   uuid.UUID
	kind string // "connection" or "client", for logs
	opts Options

	state stateBox

	// disconnected is the teardown guard. Whoever flips it first (the
	// receive loop or a local disposal) runs the teardown; everyone else
	// returns without touching the transport.
	disconnected atomic.Bool

	mu      sync.Mutex // orders attach against dispose
	session transport.Session
	sender  *sender
	tag     util.Tag
	ctx     context.Context
	cancel  context.CancelFunc

	releaseOnce sync.Once
	releaseErr  error

	done     chan struct{}
	doneOnce sync.Once

	errMu sync.Mutex
	err   error

	onReceive    handlers[protocol.Packet]
	onDisconnect handlers[struct{}]
}

func (e *endpoint) init(kind string, opts Options) {
	e.id = uuid.New()
	e.kind = kind
	e.opts = opts.withDefaults()
	e.done = make(chan struct{})
}

// attach binds s to the endpoint and starts the writer. The receive loop is
// started separately by start so subscribers can register first. It fails
// if the endpoint was disposed before a session arrived.
func (e *endpoint) attach(s transport.Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disconnected.Load() {
		return false
	}
	e.session = s
	e.tag = util.SessionTag(s.LocalAddr(), s.RemoteAddr())
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.sender = newSender(s, e.opts.SendQueueSize, e.tag)
	e.state.advance(StateConnected)
	util.Stats.AddConn()
	return true
}

func (e *endpoint) start() {
	go e.receiveLoop()
}

// ID is a unique identifier assigned at construction.
func (e *endpoint) ID() string { return e.id.String() }

// State reports the current lifecycle state.
func (e *endpoint) State() State { return e.state.load() }

// Done is closed once the session has ended and the receive loop has exited.
func (e *endpoint) Done() <-chan struct{} { return e.done }

// Err returns the unexpected error that ended the receive loop, if any.
// A peer disconnect or a local disposal leaves it nil.
func (e *endpoint) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// LocalAddr is nil before the endpoint is connected.
func (e *endpoint) LocalAddr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.LocalAddr()
}

// RemoteAddr is nil before the endpoint is connected.
func (e *endpoint) RemoteAddr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.RemoteAddr()
}

// OnReceive subscribes fn to every packet received. fn runs on the receive
// loop goroutine. The returned function unsubscribes.
func (e *endpoint) OnReceive(fn func(protocol.Packet)) func() {
	return e.onReceive.add(fn)
}

// OnDisconnect subscribes fn to the end of the session. It fires at most
// once per endpoint, whether the peer or the local side ended it.
func (e *endpoint) OnDisconnect(fn func()) func() {
	return e.onDisconnect.add(func(struct{}) { fn() })
}

// Send encodes pkt and queues it for writing. It does not wait for the
// write to complete.
func (e *endpoint) Send(pkt protocol.Packet) error {
	return e.write(protocol.Encode(pkt))
}

// SendRaw queues b unchanged (apart from framing). The caller may reuse b
// once SendRaw returns. An empty b is rejected with ErrEmptyPayload.
func (e *endpoint) SendRaw(b []byte) error {
	return e.write(b)
}

// SendObject sends v serialized as JSON inside a Message payload.
func (e *endpoint) SendObject(v any) error {
	pkt, err := protocol.ObjectMessage(v)
	if err != nil {
		return err
	}
	return e.Send(pkt)
}

func (e *endpoint) write(payload []byte) error {
	switch e.State() {
	case StateIdle, StateDisconnected:
		return ErrNotConnected
	case StateDisposed:
		return ErrDisposed
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	frame, err := e.opts.Framer.AppendFrame(nil, payload)
	if err != nil {
		return err
	}
	return e.sender.send(frame)
}

func (e *endpoint) receiveLoop() {
	defer e.closeDone()

	var r io.Reader = e.session
	size := e.session.ReceiveBufferSize()
	if e.opts.Framer.Buffered() {
		r = bufio.NewReaderSize(r, size)
	}
	buf := make([]byte, size)

	for {
		frame, err := e.opts.Framer.ReadFrame(r, buf)
		if err != nil {
			switch {
			case e.ctx.Err() != nil:
				// Local disposal closed the transport under us.
			case transport.IsDisconnect(err):
				e.peerDisconnected(err.Error())
			default:
				e.fail(err)
			}
			return
		}

		if len(frame) == 0 {
			e.peerDisconnected("empty read")
			return
		}
		if frame[0] == 0 && !e.opts.DisableZeroByteSentinel {
			e.peerDisconnected("zero byte")
			return
		}

		pkt, ok := protocol.DecodeOrRaw(frame)
		if ok && pkt.IsDisconnect() {
			e.peerDisconnected("disconnect packet")
			return
		}

		util.Stats.AddRecv(len(frame), !ok)
		if !ok {
			e.tag.Debug("%d byte frame is not an envelope, delivering as raw message", len(frame))
		}
		e.onReceive.emit(pkt)
	}
}

// peerDisconnected runs on the receive loop when the peer ended the session.
func (e *endpoint) peerDisconnected(reason string) {
	if !e.disconnected.CompareAndSwap(false, true) {
		return
	}

	e.tag.Info("%s %s: peer disconnected (%s)", e.kind, e.id, reason)
	e.onDisconnect.emit(struct{}{})
	e.state.advance(StateDisconnected)
	e.release(0)
}

// fail ends the session after an error that is neither a disconnect nor a
// local close. The error is kept for Err and not retried.
func (e *endpoint) fail(err error) {
	if !e.disconnected.CompareAndSwap(false, true) {
		return
	}

	e.errMu.Lock()
	e.err = fmt.Errorf("%s %s: receive loop: %w", e.kind, e.id, err)
	e.errMu.Unlock()

	e.tag.Error("%s %s: receive loop failed: %v", e.kind, e.id, err)
	e.state.advance(StateDisconnected)
	e.release(0)
}

// dispose ends the session from the local side, flushing queued frames
// first, and marks the endpoint disposed. Only the first call closes the
// transport and notifies subscribers.
func (e *endpoint) dispose() error {
	e.mu.Lock()
	first := e.disconnected.CompareAndSwap(false, true)
	attached := e.session != nil
	e.mu.Unlock()

	var err error
	if first && attached {
		e.state.advance(StateDisconnected)
		err = e.release(e.opts.FlushTimeout)
		e.tag.Debug("%s %s disposed", e.kind, e.id)
		e.onDisconnect.emit(struct{}{})
	}

	e.state.advance(StateDisposed)
	if !attached {
		e.closeDone()
	}
	return err
}

// release stops the writer, cancels the loop context and closes the
// transport exactly once.
func (e *endpoint) release(flush time.Duration) error {
	e.releaseOnce.Do(func() {
		e.sender.stop(flush)
		e.cancel()
		e.releaseErr = e.session.Close()
		util.Stats.RemoveConn()
	})
	return e.releaseErr
}

func (e *endpoint) closeDone() {
	e.doneOnce.Do(func() { close(e.done) })
}
