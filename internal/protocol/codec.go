package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidEnvelope = errors.New("protocol: invalid envelope")
	ErrUnknownKind     = errors.New("protocol: unknown packet kind")
)

// envelope is the on-wire shape: {"PacketType":<0|1>,"Data":<string|null>}.
type envelope struct {
	PacketType *Kind   `json:"PacketType"`
	Data       *string `json:"Data"`
}

// DecodeError is returned by Decode when the input is not one well-formed
// envelope. Raw holds a copy of the rejected bytes.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d bytes: %v", len(e.Raw), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes a Packet into its JSON envelope.
func Encode(pkt Packet) []byte {
	env := envelope{PacketType: &pkt.Kind}
	if pkt.Payload != "" {
		data := pkt.Payload
		env.Data = &data
	}
	// Marshal cannot fail for a uint8 and an optional string.
	buf, _ := json.Marshal(env)
	return buf
}

// Decode parses exactly one envelope from data. It never panics; anything
// that is not a single envelope with a known PacketType yields a *DecodeError.
func Decode(data []byte) (Packet, error) {
	fail := func(err error) (Packet, error) {
		raw := make([]byte, len(data))
		copy(raw, data)
		return Packet{}, &DecodeError{Raw: raw, Err: err}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return fail(fmt.Errorf("%w: empty input", ErrInvalidEnvelope))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidEnvelope, err))
	}

	// Two envelopes coalesced into one read are not one of ours either.
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return fail(fmt.Errorf("%w: trailing data after envelope", ErrInvalidEnvelope))
	}

	if env.PacketType == nil {
		return fail(fmt.Errorf("%w: missing PacketType", ErrInvalidEnvelope))
	}
	if !env.PacketType.Valid() {
		return fail(fmt.Errorf("%w: %d", ErrUnknownKind, uint8(*env.PacketType)))
	}

	pkt := Packet{Kind: *env.PacketType}
	if env.Data != nil {
		pkt.Payload = *env.Data
	}
	return pkt, nil
}

// DecodeOrRaw decodes data, falling back to a Message packet whose payload is
// the raw bytes. The boolean reports whether data was a real envelope.
func DecodeOrRaw(data []byte) (Packet, bool) {
	pkt, err := Decode(data)
	if err != nil {
		return Message(string(data)), false
	}
	return pkt, true
}
