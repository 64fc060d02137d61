package link

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/pktlink/internal/protocol"
	"github.com/1ureka/pktlink/internal/transport"
)

// Client dials a Listener and exchanges packets with the resulting
// Connection. A Client carries one session; once it ends, create a new one.
type Client struct {
	endpoint

	network    transport.Network
	connectMu  sync.Mutex
	connecting bool
}

func NewClient(network transport.Network, opts Options) *Client {
	c := &Client{network: network}
	c.init("client", opts)
	return c
}

// Connect dials addr and starts the receive loop. Subscribe with OnReceive
// and OnDisconnect before calling it to observe every packet.
func (c *Client) Connect(ctx context.Context, addr string) error {
	c.connectMu.Lock()
	if err := c.connectable(); err != nil {
		c.connectMu.Unlock()
		return err
	}
	c.connecting = true
	c.connectMu.Unlock()

	s, err := c.network.Dial(ctx, addr)

	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	c.connecting = false
	if err != nil {
		return fmt.Errorf("connect %s over %s: %w", addr, c.network.Name(), err)
	}
	if !c.attach(s) {
		// Disposed while dialing.
		s.Close()
		return ErrDisposed
	}
	c.tag.Success("client %s connected to %s over %s", c.id, s.RemoteAddr(), c.network.Name())
	c.start()
	return nil
}

func (c *Client) connectable() error {
	if c.connecting {
		return ErrAlreadyConnected
	}
	switch c.State() {
	case StateConnected:
		return ErrAlreadyConnected
	case StateDisconnected:
		return ErrSessionEnded
	case StateDisposed:
		return ErrDisposed
	}
	return nil
}

// Disconnect tells the peer the client is leaving. The session ends when
// the peer closes the transport in response, which fires OnDisconnect.
func (c *Client) Disconnect() error {
	return c.Send(protocol.Disconnect())
}

// DisconnectAndDispose sends a Disconnect packet if still connected, flushes
// queued packets (bounded by Options.FlushTimeout) and closes the transport.
// It is safe to call more than once and concurrently with a peer disconnect.
func (c *Client) DisconnectAndDispose() error {
	if c.State() == StateConnected {
		_ = c.Disconnect()
	}
	return c.dispose()
}
