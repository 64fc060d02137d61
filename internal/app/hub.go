package app

import (
	"errors"
	"sync"

	"github.com/1ureka/pktlink/internal/link"
	"github.com/1ureka/pktlink/internal/protocol"
	"github.com/1ureka/pktlink/internal/util"
)

// Hub tracks the live connections of a server. The Listener keeps no
// references of its own, so whoever needs to reach a connection later holds
// it here.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]*link.Connection
	closed bool
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*link.Connection)}
}

// Register adds c and starts an auto-cleanup goroutine that removes it once
// its session is over. After CloseAll, c is disposed instead and Register
// reports false.
func (h *Hub) Register(c *link.Connection) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.DisconnectAndDispose()
		return false
	}
	h.conns[c.ID()] = c
	h.mu.Unlock()

	go func() {
		<-c.Done()
		h.Remove(c.ID())
	}()
	return true
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

func (h *Hub) Get(id string) (*link.Connection, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	return c, ok
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) snapshot() []*link.Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*link.Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast sends pkt to every connection except the one with id from and
// returns how many sends were queued.
func (h *Hub) Broadcast(from string, pkt protocol.Packet) int {
	sent := 0
	for _, c := range h.snapshot() {
		if c.ID() == from {
			continue
		}
		if err := c.Send(pkt); err != nil {
			util.LogDebug("broadcast to %s skipped: %v", c.ID(), err)
			continue
		}
		sent++
	}
	return sent
}

// CloseAll disposes every tracked connection. The hub stays closed: later
// registrations are disposed on arrival.
func (h *Hub) CloseAll() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	var errs []error
	for _, c := range h.snapshot() {
		if err := c.DisconnectAndDispose(); err != nil {
			errs = append(errs, err)
		}
		h.Remove(c.ID())
	}
	return errors.Join(errs...)
}
