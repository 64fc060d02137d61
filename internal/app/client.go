package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/1ureka/pktlink/internal/config"
	"github.com/1ureka/pktlink/internal/link"
	"github.com/1ureka/pktlink/internal/protocol"
	"github.com/1ureka/pktlink/internal/util"
)

// Client input commands. Any other line is sent as a Message.
const (
	cmdQuit = "/quit"
	cmdRaw  = "/raw "
)

// RunClient connects to cfg.Address, sends each line read from in and
// prints every received packet to out. It returns when in is exhausted,
// the user types /quit, the server ends the session, or ctx is cancelled.
func RunClient(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	network, err := cfg.Network()
	if err != nil {
		return err
	}
	opts, err := cfg.LinkOptions()
	if err != nil {
		return err
	}

	w := &lockedWriter{w: out}
	c := link.NewClient(network, opts)
	c.OnReceive(func(pkt protocol.Packet) {
		w.printf("< %s\n", pkt.Payload)
	})

	if err := c.Connect(ctx, cfg.Address); err != nil {
		return err
	}
	defer c.DisconnectAndDispose()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-c.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			if err := c.Err(); err != nil {
				return err
			}
			util.LogWarning("server closed the connection")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := sendLine(c, line); err != nil {
				if errors.Is(err, errQuit) {
					return c.DisconnectAndDispose()
				}
				util.LogWarning("send failed: %v", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

func sendLine(c *link.Client, line string) error {
	switch {
	case strings.TrimSpace(line) == "":
		return nil
	case strings.TrimSpace(line) == cmdQuit:
		return errQuit
	case strings.HasPrefix(line, cmdRaw):
		return c.SendRaw([]byte(strings.TrimPrefix(line, cmdRaw)))
	default:
		return c.Send(protocol.Message(line))
	}
}

// lockedWriter serializes writes from receive loops and the caller.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}
