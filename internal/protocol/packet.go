// Package protocol defines the packet model and its JSON envelope wire format.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind tells the peer how to handle a packet.
type Kind uint8

// Packet kinds. The numeric values are part of the wire format.
const (
	KindMessage    Kind = 0 // application payload
	KindDisconnect Kind = 1 // peer is going away
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known packet kind.
func (k Kind) Valid() bool {
	return k == KindMessage || k == KindDisconnect
}

// Packet is one discrete message exchanged between two endpoints.
// An empty Payload is encoded as a null Data field.
type Packet struct {
	Kind    Kind
	Payload string
}

// Message returns a Message packet carrying payload.
func Message(payload string) Packet {
	return Packet{Kind: KindMessage, Payload: payload}
}

// Disconnect returns the canonical Disconnect packet used by both sides
// of a session when shutting down.
func Disconnect() Packet {
	return Packet{Kind: KindDisconnect}
}

// IsDisconnect reports whether the packet announces a peer disconnect.
func (p Packet) IsDisconnect() bool {
	return p.Kind == KindDisconnect
}

// ObjectMessage serializes v as JSON and wraps it in a Message packet.
func ObjectMessage(v any) (Packet, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Packet{}, fmt.Errorf("protocol: marshal object payload: %w", err)
	}
	return Message(string(data)), nil
}

// Object deserializes the JSON payload into out.
func (p Packet) Object(out any) error {
	if p.Payload == "" {
		return fmt.Errorf("protocol: %s packet has no payload", p.Kind)
	}
	if err := json.Unmarshal([]byte(p.Payload), out); err != nil {
		return fmt.Errorf("protocol: unmarshal object payload: %w", err)
	}
	return nil
}
