package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	FramingRead   = "read"
	FramingLength = "length"

	// LengthHeaderSize is the big-endian uint32 prefix used by LengthFraming.
	LengthHeaderSize = 4

	DefaultMaxFrameSize = 8 * 1024 * 1024
)

var (
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
	ErrUnknownFraming = errors.New("protocol: unknown framing")
)

// Framer decides where one envelope ends on a session's byte stream.
type Framer interface {
	Name() string
	// ReadFrame reads one frame from r, using buf as scratch space when it is
	// large enough. The returned slice may alias buf.
	ReadFrame(r io.Reader, buf []byte) ([]byte, error)
	// AppendFrame appends the framed form of payload to dst.
	AppendFrame(dst, payload []byte) ([]byte, error)
	// Buffered reports whether reads may be served from a bufio.Reader.
	Buffered() bool
}

// ReadFraming treats every successful transport read as exactly one
// envelope, with no prefix on the wire. Messages that the transport splits or
// coalesces are not reassembled; message-oriented transports (WebSocket,
// DataChannel) never do either.
type ReadFraming struct{}

func (ReadFraming) Name() string   { return FramingRead }
func (ReadFraming) Buffered() bool { return false }

func (ReadFraming) ReadFrame(r io.Reader, buf []byte) ([]byte, error) {
	n, err := r.Read(buf)
	if n > 0 {
		// A trailing error is reported again by the next Read.
		return buf[:n], nil
	}
	return buf[:0], err
}

func (ReadFraming) AppendFrame(dst, payload []byte) ([]byte, error) {
	return append(dst, payload...), nil
}

// LengthFraming prefixes every envelope with its length as a big-endian
// uint32, so envelopes survive stream fragmentation and coalescing.
type LengthFraming struct {
	MaxFrameSize uint32
}

func (LengthFraming) Name() string   { return FramingLength }
func (LengthFraming) Buffered() bool { return true }

func (f LengthFraming) limit() uint32 {
	if f.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}

func (f LengthFraming) ReadFrame(r io.Reader, buf []byte) ([]byte, error) {
	var head [LengthHeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(head[:])
	if size > f.limit() {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, f.limit())
	}

	var body []byte
	if int(size) <= len(buf) {
		body = buf[:size]
	} else {
		body = make([]byte, size)
	}
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return body, nil
}

func (f LengthFraming) AppendFrame(dst, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > uint64(f.limit()) {
		return dst, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), f.limit())
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

// ParseFraming maps a configuration name to a Framer. An empty name selects
// ReadFraming.
func ParseFraming(name string, maxFrameSize uint32) (Framer, error) {
	switch name {
	case "", FramingRead:
		return ReadFraming{}, nil
	case FramingLength:
		return LengthFraming{MaxFrameSize: maxFrameSize}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFraming, name)
	}
}
