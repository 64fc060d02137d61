package link

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/1ureka/pktlink/internal/util"
)

// sender is the single writer for a session. Frames are written in the
// order they were enqueued, so packets from one goroutine arrive in order.
type sender struct {
	w     io.Writer
	tag   util.Tag
	inbox chan outbound
	quit  chan struct{}
	done  chan struct{}

	closed atomic.Bool
}

// outbound is one queue entry: a frame to write, or a flush marker that ends
// the writer once everything ahead of it is written.
type outbound struct {
	frame []byte
	flush bool
}

// newSender starts the writer goroutine. It exits on stop.
func newSender(w io.Writer, queueSize int, tag util.Tag) *sender {
	s := &sender{
		w:     w,
		tag:   tag,
		inbox: make(chan outbound, queueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	go s.loop()

	return s
}

func (s *sender) loop() {
	defer close(s.done)

	failed := false
	for {
		select {
		case out := <-s.inbox:
			if out.flush {
				return
			}
			if failed {
				continue
			}
			if _, err := s.w.Write(out.frame); err != nil {
				// The receive loop observes the broken transport and tears
				// the session down; drop what is still queued.
				s.tag.Debug("write failed, dropping queued frames: %v", err)
				failed = true
				continue
			}
			util.Stats.AddSent(len(out.frame))
		case <-s.quit:
			return
		}
	}
}

// send enqueues frame. It blocks while the queue is full and fails once the
// sender has been stopped.
func (s *sender) send(frame []byte) error {
	if s.closed.Load() {
		return ErrNotConnected
	}
	select {
	case s.inbox <- outbound{frame: frame}:
		return nil
	case <-s.quit:
		return ErrNotConnected
	}
}

// stop ends the writer. With flush > 0 it first waits up to flush for the
// frames already queued to be written.
func (s *sender) stop(flush time.Duration) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	if flush > 0 {
		timer := time.NewTimer(flush)
		defer timer.Stop()

		select {
		case s.inbox <- outbound{flush: true}:
			select {
			case <-s.done:
			case <-timer.C:
				s.tag.Warning("flush timed out after %s", flush)
			}
		case <-timer.C:
			s.tag.Warning("flush timed out after %s", flush)
		}
	}

	close(s.quit)
}
