package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/pktlink/internal/util"
)

func TestMain(m *testing.M) {
	util.Quiet()
	os.Exit(m.Run())
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", NetworkTCP, NetworkWebSocket, NetworkWebRTC} {
		t.Run(fmt.Sprintf("name=%q", name), func(t *testing.T) {
			n, err := New(name, Options{})
			require.NoError(t, err)
			if name == "" {
				assert.Equal(t, NetworkTCP, n.Name())
			} else {
				assert.Equal(t, name, n.Name())
			}
		})
	}

	_, err := New("carrier-pigeon", Options{})
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestIsDisconnect(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"EOF", io.EOF, true},
		{"unexpected EOF", io.ErrUnexpectedEOF, true},
		{"net closed", fmt.Errorf("read: %w", net.ErrClosed), true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"transport closed", ErrClosed, true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"broken pipe", &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, true},
		{"websocket close", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"other", errors.New("disk on fire"), false},
		{"timeout", os.ErrDeadlineExceeded, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDisconnect(tc.err))
		})
	}
}

// exchange dials n, writes msgs one at a time and checks each arrives as
// exactly one read on the accepted side.
func exchange(t *testing.T, n Network, msgs []string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acceptor, err := n.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer acceptor.Close()

	accepted := make(chan Session, 1)
	go func() {
		s, err := acceptor.Accept()
		if err == nil {
			accepted <- s
		}
	}()

	client, err := n.Dial(ctx, acceptor.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var server Session
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("timed out waiting for Accept")
	}
	defer server.Close()

	assert.Positive(t, server.ReceiveBufferSize())
	assert.NotNil(t, server.RemoteAddr())

	buf := make([]byte, server.ReceiveBufferSize())
	for _, msg := range msgs {
		_, err := client.Write([]byte(msg))
		require.NoError(t, err)

		n, err := server.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, msg, string(buf[:n]))
	}

	require.NoError(t, client.Close())
	_, err = readUntilErr(server, buf)
	assert.True(t, IsDisconnect(err), "expected disconnect error, got %v", err)
}

func readUntilErr(s Session, buf []byte) (int, error) {
	total := 0
	for {
		n, err := s.Read(buf)
		total += n
		if err != nil {
			return total, err
		}
	}
}

func TestTCPExchange(t *testing.T) {
	exchange(t, &TCP{}, []string{"hello", `{"PacketType":0,"Data":"x"}`})
}

func TestWebSocketExchange(t *testing.T) {
	exchange(t, &WebSocket{}, []string{"hello", `{"PacketType":0,"Data":"x"}`, "third"})
}

func TestWebSocketPreservesMessageBoundaries(t *testing.T) {
	ctx := context.Background()
	w := &WebSocket{Path: "/pkt"}

	acceptor, err := w.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer acceptor.Close()

	accepted := make(chan Session, 1)
	go func() {
		s, err := acceptor.Accept()
		if err == nil {
			accepted <- s
		}
	}()

	client, err := w.Dial(ctx, "ws://"+acceptor.Addr().String()+"/pkt")
	require.NoError(t, err)
	defer client.Close()
	server := <-accepted
	defer server.Close()

	// Back-to-back writes would coalesce on a raw stream.
	for _, msg := range []string{"a", "bb", "ccc"} {
		_, err := client.Write([]byte(msg))
		require.NoError(t, err)
	}

	buf := make([]byte, 64)
	for _, want := range []string{"a", "bb", "ccc"} {
		n, err := server.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, want, string(buf[:n]))
	}

	// A message larger than the buffer spans consecutive reads.
	_, err = client.Write([]byte("0123456789"))
	require.NoError(t, err)
	small := make([]byte, 4)
	var got []byte
	for len(got) < 10 {
		n, err := server.Read(small)
		require.NoError(t, err)
		got = append(got, small[:n]...)
	}
	assert.Equal(t, "0123456789", string(got))
}

func TestAcceptAfterClose(t *testing.T) {
	for _, n := range []Network{&TCP{}, &WebSocket{}, &WebRTC{}} {
		t.Run(n.Name(), func(t *testing.T) {
			acceptor, err := n.Listen(context.Background(), "127.0.0.1:0")
			require.NoError(t, err)

			errCh := make(chan error, 1)
			go func() {
				_, err := acceptor.Accept()
				errCh <- err
			}()

			require.NoError(t, acceptor.Close())
			select {
			case err := <-errCh:
				assert.True(t, IsClosed(err), "expected closed error, got %v", err)
			case <-time.After(5 * time.Second):
				t.Fatal("Accept did not return after Close")
			}

			// Closing twice is harmless.
			assert.NotPanics(t, func() { acceptor.Close() })
		})
	}
}

func TestWebSocketCloseDropsBacklog(t *testing.T) {
	acceptor, err := (&WebSocket{}).Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	backlog := acceptor.(*wsAcceptor).conns

	client, err := (&WebSocket{}).Dial(context.Background(), acceptor.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return len(backlog) == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, acceptor.Close())
	assert.Empty(t, backlog)

	errCh := make(chan error, 1)
	go func() {
		_, err := readUntilErr(client, make([]byte, client.ReceiveBufferSize()))
		errCh <- err
	}()
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("unaccepted session was left open after Close")
	}
}

func TestStreamSessionOverPipe(t *testing.T) {
	a, b := net.Pipe()
	sa := NewStreamSession(a, 0)
	sb := NewStreamSession(b, 128)
	defer sa.Close()
	defer sb.Close()

	assert.Equal(t, DefaultReceiveBufferSize, sa.ReceiveBufferSize())
	assert.Equal(t, 128, sb.ReceiveBufferSize())

	go sa.Write([]byte("over the pipe"))
	buf := make([]byte, sb.ReceiveBufferSize())
	n, err := sb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "over the pipe", string(buf[:n]))
}

func TestDialRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = (&TCP{DialTimeout: time.Second}).Dial(context.Background(), addr)
	assert.Error(t, err)
	_, err = (&WebSocket{DialTimeout: time.Second}).Dial(context.Background(), addr)
	assert.Error(t, err)
}
