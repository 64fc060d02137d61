package protocol_test

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/1ureka/pktlink/internal/protocol"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse
// operations for both packet kinds with various payloads.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		pkt  protocol.Packet
	}{
		{"Message with text", protocol.Message("ping")},
		{"Message with empty payload", protocol.Message("")},
		{"Message with unicode", protocol.Message("héllo 世界 🚀")},
		{"Message with JSON-looking payload", protocol.Message(`{"PacketType":1,"Data":null}`)},
		{"Message with control characters", protocol.Message("line1\nline2\t\"quoted\"\\")},
		{"Message with HTML characters", protocol.Message("<a href='x'>&amp;</a>")},
		{"Message with large payload (64KB)", protocol.Message(strings.Repeat("x", 64*1024))},
		{"Disconnect", protocol.Disconnect()},
		{"Disconnect with payload", protocol.Packet{Kind: protocol.KindDisconnect, Payload: "bye"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := protocol.Encode(tc.pkt)

			decoded, err := protocol.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded != tc.pkt {
				t.Errorf("Packet mismatch: got %+v, want %+v", decoded, tc.pkt)
			}
		})
	}
}

// TestEncodeWireFormat pins the exact envelope shape peers rely on.
func TestEncodeWireFormat(t *testing.T) {
	testCases := []struct {
		name string
		pkt  protocol.Packet
		want string
	}{
		{"message", protocol.Message("ping"), `{"PacketType":0,"Data":"ping"}`},
		{"empty message", protocol.Message(""), `{"PacketType":0,"Data":null}`},
		{"disconnect", protocol.Disconnect(), `{"PacketType":1,"Data":null}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(protocol.Encode(tc.pkt)); got != tc.want {
				t.Errorf("Encode mismatch: got %s, want %s", got, tc.want)
			}
		})
	}
}

// TestDecodeAcceptsPeerEnvelopes covers envelopes written by other
// implementations: absent Data, extra whitespace, reordered keys.
func TestDecodeAcceptsPeerEnvelopes(t *testing.T) {
	testCases := []struct {
		name string
		data string
		want protocol.Packet
	}{
		{"absent Data", `{"PacketType":1}`, protocol.Disconnect()},
		{"reordered keys", `{"Data":"hi","PacketType":0}`, protocol.Message("hi")},
		{"surrounding whitespace", " \r\n{\"PacketType\":0,\"Data\":\"x\"}\r\n", protocol.Message("x")},
		{"empty string Data", `{"PacketType":0,"Data":""}`, protocol.Message("")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := protocol.Decode([]byte(tc.data))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Packet mismatch: got %+v, want %+v", got, tc.want)
			}
		})
	}
}

// TestDecodeRejectsNonEnvelopes verifies that Decode returns a *DecodeError
// rather than a packet for anything that is not exactly one envelope.
func TestDecodeRejectsNonEnvelopes(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"whitespace", []byte("   \n")},
		{"plain text", []byte("hello")},
		{"json null", []byte("null")},
		{"json array", []byte(`[0,"x"]`)},
		{"json string", []byte(`"x"`)},
		{"missing PacketType", []byte(`{"Data":"x"}`)},
		{"unknown field", []byte(`{"PacketType":0,"Data":"x","Extra":1}`)},
		{"unknown kind", []byte(`{"PacketType":7,"Data":"x"}`)},
		{"negative kind", []byte(`{"PacketType":-1}`)},
		{"fractional kind", []byte(`{"PacketType":0.5}`)},
		{"string kind", []byte(`{"PacketType":"0"}`)},
		{"numeric Data", []byte(`{"PacketType":0,"Data":42}`)},
		{"truncated", []byte(`{"PacketType":0,"Da`)},
		{"two envelopes coalesced", []byte(`{"PacketType":0,"Data":"a"}{"PacketType":0,"Data":"b"}`)},
		{"leading zero byte", []byte{0x00, '{', '}'}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Decode(tc.data)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}

			var decErr *protocol.DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("Expected *DecodeError, got %T", err)
			}
			if string(decErr.Raw) != string(tc.data) {
				t.Errorf("Raw mismatch: got %q, want %q", decErr.Raw, tc.data)
			}
			if !errors.Is(err, protocol.ErrInvalidEnvelope) && !errors.Is(err, protocol.ErrUnknownKind) {
				t.Errorf("Unexpected error classification: %v", err)
			}
		})
	}
}

// TestDecodeNeverPanics feeds random byte sequences through Decode.
func TestDecodeNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 2000; i++ {
		data := make([]byte, rng.IntN(64))
		for j := range data {
			data[j] = byte(rng.UintN(256))
		}
		// Random bytes that happen to parse are fine; a panic is not.
		_, _ = protocol.Decode(data)
	}
}

// TestDecodeOrRaw verifies the raw-bytes fallback used by the receive loop.
func TestDecodeOrRaw(t *testing.T) {
	pkt, ok := protocol.DecodeOrRaw(protocol.Encode(protocol.Message("ping")))
	if !ok || pkt != protocol.Message("ping") {
		t.Errorf("Expected decoded envelope, got %+v (ok=%v)", pkt, ok)
	}

	raw := []byte("GET / HTTP/1.1\r\n\r\n")
	pkt, ok = protocol.DecodeOrRaw(raw)
	if ok {
		t.Fatal("Expected fallback for non-envelope bytes")
	}
	if pkt.Kind != protocol.KindMessage || pkt.Payload != string(raw) {
		t.Errorf("Fallback mismatch: got %+v", pkt)
	}
}

// TestDecodeDoesNotAliasInput verifies the rejected bytes are copied.
func TestDecodeDoesNotAliasInput(t *testing.T) {
	data := []byte("not an envelope")
	_, err := protocol.Decode(data)

	var decErr *protocol.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("Expected *DecodeError, got %v", err)
	}
	data[0] = 'N'
	if string(decErr.Raw) != "not an envelope" {
		t.Errorf("Raw was aliased to the input buffer: %q", decErr.Raw)
	}
}

func TestObjectPayload(t *testing.T) {
	type point struct {
		X int    `json:"x"`
		Y int    `json:"y"`
		N string `json:"n"`
	}

	pkt, err := protocol.ObjectMessage(point{X: 3, Y: -4, N: "p"})
	if err != nil {
		t.Fatalf("ObjectMessage failed: %v", err)
	}
	if pkt.Kind != protocol.KindMessage {
		t.Fatalf("Expected Message kind, got %s", pkt.Kind)
	}

	decoded, err := protocol.Decode(protocol.Encode(pkt))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	var out point
	if err := decoded.Object(&out); err != nil {
		t.Fatalf("Object failed: %v", err)
	}
	if out != (point{X: 3, Y: -4, N: "p"}) {
		t.Errorf("Object mismatch: got %+v", out)
	}

	if err := protocol.Disconnect().Object(&out); err == nil {
		t.Error("Expected error for packet without payload")
	}
	if _, err := protocol.ObjectMessage(make(chan int)); err == nil {
		t.Error("Expected error for unserializable object")
	}
}

func TestKindString(t *testing.T) {
	if protocol.KindMessage.String() != "message" || protocol.KindDisconnect.String() != "disconnect" {
		t.Errorf("Unexpected kind names: %s, %s", protocol.KindMessage, protocol.KindDisconnect)
	}
	if protocol.Kind(9).Valid() {
		t.Error("Kind(9) should not be valid")
	}
}
