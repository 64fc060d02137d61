package link

import (
	"time"

	"github.com/1ureka/pktlink/internal/protocol"
)

const (
	DefaultSendQueueSize = 64
	DefaultFlushTimeout  = 2 * time.Second
)

// Options tune Connections and Clients. The zero value is usable.
type Options struct {
	// Framer splits the byte stream into envelopes. Nil means one transport
	// read per envelope (protocol.ReadFraming).
	Framer protocol.Framer

	// SendQueueSize bounds packets waiting for the writer goroutine.
	SendQueueSize int

	// FlushTimeout bounds how long a local disposal waits for queued packets
	// to be written before closing the transport.
	FlushTimeout time.Duration

	// DisableZeroByteSentinel stops treating a frame that starts with a zero
	// byte as a peer disconnect. Zero is a legal payload byte, so peers that
	// send raw binary frames should set this.
	DisableZeroByteSentinel bool
}

func (o Options) withDefaults() Options {
	if o.Framer == nil {
		o.Framer = protocol.ReadFraming{}
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = DefaultSendQueueSize
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}
	return o
}
