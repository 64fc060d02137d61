package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/1ureka/pktlink/internal/protocol"
)

// chunkReader returns at most n bytes per Read, simulating stream
// fragmentation.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

// TestLengthFramingSurvivesFragmentation writes several envelopes into one
// buffer (coalescing) and reads them back through 3-byte reads (splitting).
func TestLengthFramingSurvivesFragmentation(t *testing.T) {
	framer := protocol.LengthFraming{}
	packets := []protocol.Packet{
		protocol.Message("first"),
		protocol.Message(""),
		protocol.Message("third with more text"),
		protocol.Disconnect(),
	}

	var stream []byte
	for _, pkt := range packets {
		var err error
		stream, err = framer.AppendFrame(stream, protocol.Encode(pkt))
		if err != nil {
			t.Fatalf("AppendFrame failed: %v", err)
		}
	}

	r := &chunkReader{r: bytes.NewReader(stream), n: 3}
	buf := make([]byte, 8)
	for i, want := range packets {
		frame, err := framer.ReadFrame(r, buf)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		got, err := protocol.Decode(frame)
		if err != nil {
			t.Fatalf("Decode %d failed: %v", i, err)
		}
		if got != want {
			t.Errorf("Packet %d mismatch: got %+v, want %+v", i, got, want)
		}
	}

	if _, err := framer.ReadFrame(r, buf); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
}

func TestLengthFramingTruncatedFrame(t *testing.T) {
	framer := protocol.LengthFraming{}
	stream, _ := framer.AppendFrame(nil, []byte("0123456789"))

	testCases := []struct {
		name string
		data []byte
	}{
		{"partial header", stream[:2]},
		{"partial body", stream[:protocol.LengthHeaderSize+3]},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := framer.ReadFrame(bytes.NewReader(tc.data), make([]byte, 64))
			if !errors.Is(err, io.EOF) {
				t.Errorf("Expected io.EOF, got %v", err)
			}
		})
	}
}

func TestLengthFramingLimit(t *testing.T) {
	framer := protocol.LengthFraming{MaxFrameSize: 4}

	if _, err := framer.AppendFrame(nil, []byte("12345")); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge on write, got %v", err)
	}

	stream, err := protocol.LengthFraming{}.AppendFrame(nil, []byte("12345"))
	if err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(bytes.NewReader(stream), nil); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge on read, got %v", err)
	}
}

// TestReadFramingOneReadOneFrame verifies that ReadFraming returns exactly
// what one Read produced, without a prefix.
func TestReadFramingOneReadOneFrame(t *testing.T) {
	framer := protocol.ReadFraming{}

	out, err := framer.AppendFrame(nil, []byte("abc"))
	if err != nil || string(out) != "abc" {
		t.Fatalf("AppendFrame mismatch: %q, %v", out, err)
	}

	r := &chunkReader{r: bytes.NewReader([]byte("abcdef")), n: 4}
	buf := make([]byte, 16)

	frame, err := framer.ReadFrame(r, buf)
	if err != nil || string(frame) != "abcd" {
		t.Fatalf("First frame mismatch: %q, %v", frame, err)
	}
	frame, err = framer.ReadFrame(r, buf)
	if err != nil || string(frame) != "ef" {
		t.Fatalf("Second frame mismatch: %q, %v", frame, err)
	}
	if _, err := framer.ReadFrame(r, buf); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestParseFraming(t *testing.T) {
	testCases := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", protocol.FramingRead, false},
		{"read", protocol.FramingRead, false},
		{"length", protocol.FramingLength, false},
		{"netstring", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := protocol.ParseFraming(tc.name, 0)
			if tc.wantErr {
				if !errors.Is(err, protocol.ErrUnknownFraming) {
					t.Fatalf("Expected ErrUnknownFraming, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFraming failed: %v", err)
			}
			if f.Name() != tc.want {
				t.Errorf("Name mismatch: got %s, want %s", f.Name(), tc.want)
			}
		})
	}
}
