// Package app contains the top-level orchestration for the server and
// client roles.
package app

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/1ureka/pktlink/internal/config"
	"github.com/1ureka/pktlink/internal/link"
	"github.com/1ureka/pktlink/internal/protocol"
	"github.com/1ureka/pktlink/internal/util"
)

// Server is a relay: it accepts connections and, depending on the mode,
// echoes packets, broadcasts them to the other connections, or only
// prints them.
type Server struct {
	cfg      config.Config
	out      *lockedWriter
	hub      *Hub
	listener *link.Listener
}

func NewServer(cfg config.Config, out io.Writer) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	network, err := cfg.Network()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.LinkOptions()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg: cfg,
		out: &lockedWriter{w: out},
		hub: NewHub(),
	}
	s.listener = link.NewListener(network, cfg.Address, opts)
	s.listener.OnConnection(s.accept)
	return s, nil
}

func (s *Server) Start() error { return s.listener.Start() }

// Addr is the bound address once started.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) Hub() *Hub { return s.hub }

// Close stops accepting and disposes every live connection.
func (s *Server) Close() error {
	lerr := s.listener.Close()
	herr := s.hub.CloseAll()
	if lerr != nil {
		return lerr
	}
	return herr
}

func (s *Server) accept(c *link.Connection) {
	if !s.hub.Register(c) {
		util.LogDebug("connection %s arrived after close, dropped", c.ID())
		return
	}
	util.LogInfo("connection %s from %s (%d live)", c.ID(), c.RemoteAddr(), s.hub.Len())

	c.OnReceive(func(pkt protocol.Packet) { s.handle(c, pkt) })
	c.OnDisconnect(func() {
		util.LogInfo("connection %s closed", c.ID())
	})
}

func (s *Server) handle(c *link.Connection, pkt protocol.Packet) {
	switch s.cfg.Mode {
	case config.ModeEcho:
		if err := c.Send(pkt); err != nil {
			util.LogWarning("echo to %s failed: %v", c.ID(), err)
		}
	case config.ModeBroadcast:
		n := s.hub.Broadcast(c.ID(), pkt)
		util.LogDebug("relayed %d bytes from %s to %d connections", len(pkt.Payload), c.ID(), n)
	case config.ModeLog:
		s.out.printf("%s %s\n", c.ID(), pkt.Payload)
	}
}

// RunServer serves cfg until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config, out io.Writer) error {
	s, err := NewServer(cfg, out)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		addr, err := util.ServeMetrics(ctx, cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		util.LogInfo("metrics on http://%s/metrics", addr)
	}
	util.StartStatsReporter(ctx, cfg.StatsInterval)

	if err := s.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	return s.Close()
}
