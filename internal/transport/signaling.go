package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// signalType identifies the kind of signaling message.
type signalType string

const (
	signalOffer     signalType = "offer"
	signalAnswer    signalType = "answer"
	signalCandidate signalType = "candidate"
)

// signal is the JSON structure exchanged over the WebSocket during signaling.
type signal struct {
	Type      signalType `json:"type"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate string     `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

// signaler runs the SDP/ICE exchange for one PeerConnection over one
// WebSocket. Writes are serialized; reads happen only in watch.
type signaler struct {
	conn *websocket.Conn
	pc   *webrtc.PeerConnection
	mu   sync.Mutex

	// Candidates that arrived before the remote description.
	pending []webrtc.ICECandidateInit
}

func (s *signaler) send(msg signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *signaler) sendOffer() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(signal{Type: signalOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *signaler) sendAnswer() error {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(signal{Type: signalAnswer, SDP: answer.SDP})
}

func (s *signaler) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("SetRemoteDescription: %w", err)
	}
	for _, c := range s.pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("AddICECandidate: %w", err)
		}
	}
	s.pending = nil
	return nil
}

func (s *signaler) addCandidate(raw string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(raw), &init); err != nil {
		return fmt.Errorf("failed to parse ICE candidate: %w", err)
	}
	if s.pc.RemoteDescription() == nil {
		s.pending = append(s.pending, init)
		return nil
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("AddICECandidate: %w", err)
	}
	return nil
}

// watch applies incoming signaling messages until the WebSocket fails.
func (s *signaler) watch() error {
	for {
		var msg signal
		if err := s.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		switch msg.Type {
		case signalOffer:
			if err := s.setRemote(webrtc.SDPTypeOffer, msg.SDP); err != nil {
				return err
			}
			if err := s.sendAnswer(); err != nil {
				return err
			}

		case signalAnswer:
			if err := s.setRemote(webrtc.SDPTypeAnswer, msg.SDP); err != nil {
				return err
			}

		case signalCandidate:
			if err := s.addCandidate(msg.Candidate); err != nil {
				return err
			}
		}
	}
}

// negotiate performs the exchange and blocks until opened is closed, the
// exchange fails, or ctx ends. The offerer sends the first message.
func negotiate(ctx context.Context, conn *websocket.Conn, pc *webrtc.PeerConnection, opened <-chan struct{}, offerer bool) error {
	s := &signaler{conn: conn, pc: pc}

	// Trickle ICE candidates; best effort once the socket is gone.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		_ = s.send(signal{Type: signalCandidate, Candidate: string(data)})
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.watch()
	}()

	if offerer {
		if err := s.sendOffer(); err != nil {
			return fmt.Errorf("failed to send offer: %w", err)
		}
	}

	for {
		select {
		case <-opened:
			return nil

		case err := <-errCh:
			// The peer drops the socket as soon as its side is open; once
			// both descriptions are applied that is not a failure.
			if pc.RemoteDescription() != nil && pc.LocalDescription() != nil {
				errCh = nil
				continue
			}
			return fmt.Errorf("signaling failed: %w", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
