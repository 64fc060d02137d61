// Package link turns transport sessions into packet endpoints: a Listener
// that accepts Connections, and a Client that dials out. Each endpoint owns
// its session, one receive loop and one writer goroutine.
package link

import (
	"errors"
	"sync/atomic"
)

var (
	ErrNotConnected     = errors.New("link: not connected")
	ErrAlreadyConnected = errors.New("link: already connected")
	ErrDisposed         = errors.New("link: disposed")
	ErrSessionEnded     = errors.New("link: session ended")
	ErrListenerClosed   = errors.New("link: listener closed")

	// ErrEmptyPayload rejects a zero-length send. On the wire an empty frame
	// is the disconnect sentinel under every framing.
	ErrEmptyPayload = errors.New("link: empty payload")
)

// State is the lifecycle of a Connection or Client. It only moves forward.
type State int32

const (
	StateIdle         State = iota // client created, not yet connected
	StateConnected                 // receive loop running
	StateDisconnected              // peer or local disconnect observed, transport released
	StateDisposed                  // owner disposed the endpoint
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// stateBox stores a State and only lets it advance.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State { return State(b.v.Load()) }

// advance moves to s unless the current state is already at or past s.
func (b *stateBox) advance(s State) {
	for {
		cur := b.v.Load()
		if cur >= int32(s) {
			return
		}
		if b.v.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// ListenerState is the lifecycle of a Listener.
type ListenerState int32

const (
	ListenerIdle ListenerState = iota
	ListenerListening
	ListenerStopped
)

func (s ListenerState) String() string {
	switch s {
	case ListenerIdle:
		return "idle"
	case ListenerListening:
		return "listening"
	case ListenerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
