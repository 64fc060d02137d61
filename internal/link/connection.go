package link

import "github.com/1ureka/pktlink/internal/transport"

// Connection is the server side of one accepted session. Listeners create
// Connections; the receive loop starts once every OnConnection subscriber
// has returned, so handlers registered there see the first packet.
type Connection struct {
	endpoint
}

func newConnection(s transport.Session, opts Options) *Connection {
	c := &Connection{}
	c.init("connection", opts)
	c.attach(s)
	c.tag.Debug("connection %s accepted from %s", c.id, s.RemoteAddr())
	return c
}

// DisconnectAndDispose closes the connection from the server side. Packets
// already queued are flushed first, bounded by Options.FlushTimeout. It is
// safe to call more than once and concurrently with a peer disconnect.
func (c *Connection) DisconnectAndDispose() error {
	return c.dispose()
}
