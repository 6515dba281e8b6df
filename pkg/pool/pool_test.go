package pool

import (
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// echoListener accepts one connection at a time and echoes back whatever
// it reads, byte for byte, until the connection closes.
func echoListener(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestDialAndWithConn(t *testing.T) {
	addr, stop := echoListener(t)
	defer stop()

	host, portStr := splitHostPort(t, addr)
	p, err := Dial([]Endpoint{{Host: host, Port: portStr}})
	require.NoError(t, err)
	defer p.Close()

	err = p.WithConn(0, func(conn net.Conn) error {
		_, err := conn.Write([]byte("ping"))
		return err
	})
	require.NoError(t, err)
}

func TestDialRejectsTooManyEndpoints(t *testing.T) {
	eps := make([]Endpoint, MaxEndpoints+1)
	_, err := Dial(eps)
	require.Error(t, err)
}

// A short read mid-message (io.ReadFull's io.ErrUnexpectedEOF, as opposed
// to a clean io.EOF) is a transport failure too: it must trigger the
// reconnect-then-retry-once policy of spec §4.3/§7, not be treated as an
// application-level error and returned straight through.
func TestShortRecvTriggersReconnectAndRetry(t *testing.T) {
	addr, stop := echoListener(t)
	defer stop()

	host, portStr := splitHostPort(t, addr)
	p, err := Dial([]Endpoint{{Host: host, Port: portStr}})
	require.NoError(t, err)
	defer p.Close()

	attempt := 0
	err = p.WithConn(0, func(conn net.Conn) error {
		attempt++
		if attempt == 1 {
			return io.ErrUnexpectedEOF
		}
		_, err := conn.Write([]byte("ping"))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempt)
}

func TestIsTransportErrRecognizesShortRead(t *testing.T) {
	require.True(t, isTransportErr(io.ErrUnexpectedEOF))
	require.True(t, isTransportErr(io.EOF))
	require.False(t, isTransportErr(nil))
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	var port int
	_, err = fmt.Sscan(portStr, &port)
	require.NoError(t, err)
	return host, port
}
