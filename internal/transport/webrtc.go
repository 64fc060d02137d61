package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pktlink/internal/util"
)

const (
	highWaterMark   = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark    = 64 * 1024  // resume sending when bufferedAmount drops below this
	inboxBufferSize = 64         // received messages waiting for Read
)

// WebRTC carries sessions over a pre-negotiated, ordered DataChannel. The
// listening side runs a WebSocket signaling endpoint; every signaling client
// becomes one PeerConnection and one Session. The WebSocket is closed as soon
// as the DataChannel opens.
type WebRTC struct {
	SignalingPath     string
	ICEServers        []string
	IncludeLoopback   bool
	ReceiveBufferSize int
	ConnectTimeout    time.Duration
}

func (w *WebRTC) Name() string { return NetworkWebRTC }

func (w *WebRTC) signaling() *WebSocket {
	return &WebSocket{Path: w.SignalingPath, DialTimeout: w.ConnectTimeout}
}

func (w *WebRTC) newPeerConnection() (*webrtc.PeerConnection, error) {
	se := webrtc.SettingEngine{}
	if w.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	config := webrtc.Configuration{}
	if len(w.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: w.ICEServers}}
	}
	return api.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated DataChannel (ID 0) so both sides
// can create it independently without relying on OnDataChannel. Unlike a
// tunnel of independent streams, packets here need ordered delivery.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	negotiated := true
	id := uint16(0)
	return pc.CreateDataChannel("pktlink", &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
}

// establish builds a PeerConnection, runs signaling over conn and returns the
// session once its DataChannel is open.
func (w *WebRTC) establish(ctx context.Context, conn *websocket.Conn, offerer bool) (*dataChannelSession, error) {
	pc, err := w.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create DataChannel: %w", err)
	}

	s := newDataChannelSession(pc, dc, orDefault(w.ReceiveBufferSize, DefaultMessageReceiveBufferSize))

	ctx, cancel := context.WithTimeout(ctx, orDefault(w.ConnectTimeout, DefaultDialTimeout))
	defer cancel()

	if err := negotiate(ctx, conn, pc, s.opened, offerer); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Listen starts the signaling endpoint on addr.
func (w *WebRTC) Listen(ctx context.Context, addr string) (Acceptor, error) {
	sig, err := w.signaling().listen(ctx, addr)
	if err != nil {
		return nil, err
	}

	aCtx, cancel := context.WithCancel(context.Background())
	a := &rtcAcceptor{
		network:  w,
		signal:   sig,
		sessions: make(chan Session),
		ctx:      aCtx,
		cancel:   cancel,
	}
	go a.loop()
	return a, nil
}

// Dial connects to the signaling endpoint at addr and answers its offer.
func (w *WebRTC) Dial(ctx context.Context, addr string) (Session, error) {
	conn, err := w.signaling().dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	s, err := w.establish(ctx, conn, false)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type rtcAcceptor struct {
	network  *WebRTC
	signal   *wsAcceptor
	sessions chan Session

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (a *rtcAcceptor) loop() {
	for {
		ws, err := a.signal.accept()
		if err != nil {
			return
		}
		go a.offer(ws)
	}
}

// offer negotiates one signaling client into a session and hands it to
// Accept. Failed negotiations only cost that client.
func (a *rtcAcceptor) offer(ws *wsSession) {
	s, err := a.network.establish(a.ctx, ws.conn, true)
	ws.Close()
	if err != nil {
		util.LogWarning("WebRTC negotiation with %s failed: %v", ws.RemoteAddr(), err)
		return
	}

	select {
	case a.sessions <- s:
	case <-a.ctx.Done():
		s.Close()
	}
}

func (a *rtcAcceptor) Accept() (Session, error) {
	select {
	case s := <-a.sessions:
		return s, nil
	case <-a.ctx.Done():
		return nil, ErrClosed
	}
}

func (a *rtcAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.cancel()
		err = a.signal.Close()
	})
	return err
}

func (a *rtcAcceptor) Addr() net.Addr { return a.signal.Addr() }

// dataChannelSession adapts a DataChannel into a Session. Each received
// message is served by one Read (or several, if larger than the buffer).
type dataChannelSession struct {
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
	size int

	opened    chan struct{}
	openOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once // closed channel
	tearOnce  sync.Once // dc/pc teardown
	sendReady chan struct{}
	inbox     chan []byte

	rmu     sync.Mutex
	pending []byte
}

func newDataChannelSession(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, size int) *dataChannelSession {
	s := &dataChannelSession{
		pc:        pc,
		dc:        dc,
		size:      size,
		opened:    make(chan struct{}),
		closed:    make(chan struct{}),
		sendReady: make(chan struct{}, 1),
		inbox:     make(chan []byte, inboxBufferSize),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.sendReady <- struct{}{}:
		default:
		}
	})

	dc.OnOpen(func() {
		s.openOnce.Do(func() { close(s.opened) })
	})
	dc.OnClose(s.markClosed)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case s.inbox <- msg.Data:
		case <-s.closed:
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.markClosed()
		}
	})

	return s
}

func (s *dataChannelSession) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *dataChannelSession) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	if len(s.pending) == 0 {
		select {
		case msg := <-s.inbox:
			s.pending = msg
		case <-s.closed:
			// Deliver what already arrived before reporting the close.
			select {
			case msg := <-s.inbox:
				s.pending = msg
			default:
				return 0, io.EOF
			}
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Write sends p as one DataChannel message, blocking while the outgoing
// buffer is above the high-water mark.
func (s *dataChannelSession) Write(p []byte) (int, error) {
	if s.dc.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-s.sendReady:
		case <-s.closed:
			return 0, io.ErrClosedPipe
		}
	}

	select {
	case <-s.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	if err := s.dc.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *dataChannelSession) Close() error {
	var err error
	s.tearOnce.Do(func() {
		s.markClosed()
		err = errors.Join(s.dc.Close(), s.pc.Close())
	})
	return err
}

func (s *dataChannelSession) ReceiveBufferSize() int { return s.size }

func (s *dataChannelSession) LocalAddr() net.Addr {
	local, _ := s.candidatePair()
	return local
}

func (s *dataChannelSession) RemoteAddr() net.Addr {
	_, remote := s.candidatePair()
	return remote
}

// candidatePair reports the selected ICE pair, or placeholder addresses
// before one is selected.
func (s *dataChannelSession) candidatePair() (net.Addr, net.Addr) {
	local, remote := rtcAddr("unknown"), rtcAddr("unknown")

	sctp := s.pc.SCTP()
	if sctp == nil || sctp.Transport() == nil || sctp.Transport().ICETransport() == nil {
		return local, remote
	}
	pair, err := sctp.Transport().ICETransport().GetSelectedCandidatePair()
	if err != nil || pair == nil || pair.Local == nil || pair.Remote == nil {
		return local, remote
	}
	local = rtcAddr(net.JoinHostPort(pair.Local.Address, strconv.Itoa(int(pair.Local.Port))))
	remote = rtcAddr(net.JoinHostPort(pair.Remote.Address, strconv.Itoa(int(pair.Remote.Port))))
	return local, remote
}

// rtcAddr is the address of one side of the selected ICE candidate pair.
type rtcAddr string

func (a rtcAddr) Network() string { return NetworkWebRTC }
func (a rtcAddr) String() string  { return string(a) }
