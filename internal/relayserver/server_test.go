package relayserver

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/tcprelay/internal/addr"
	"github.com/relaycore/tcprelay/internal/config"
)

func testLogger() zerolog.Logger {
	return zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.Disabled)
}

func startEchoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) { _, _ = io.Copy(c, c) }(conn)
		}
	}()
	return ln
}

func ephemeralTuple(t *testing.T, dst net.Addr) config.Tuple {
	t.Helper()
	listenEp, err := addr.ParseHostPort("127.0.0.1:0")
	require.NoError(t, err)
	dstEp, err := addr.ParseHostPort(dst.String())
	require.NoError(t, err)
	tuple, err := config.NewTuple(listenEp, addr.Endpoint{}, dstEp)
	require.NoError(t, err)
	return tuple
}

// TestMultiTupleBatchBothPairsCorrect exercises spec §8 scenario 3: two
// concurrent tuples, each carrying its own traffic without cross-talk.
func TestMultiTupleBatchBothPairsCorrect(t *testing.T) {
	dstA := startEchoServer(t)
	defer dstA.Close()
	dstB := startEchoServer(t)
	defer dstB.Close()

	srv := New(testLogger(), Options{Workers: 2})
	bound, err := srv.Run([]config.Tuple{ephemeralTuple(t, dstA.Addr()), ephemeralTuple(t, dstB.Addr())})
	require.NoError(t, err)
	defer srv.Shutdown()
	require.Len(t, bound, 2)

	connA, err := net.Dial("tcp", bound[0].String())
	require.NoError(t, err)
	defer connA.Close()
	connB, err := net.Dial("tcp", bound[1].String())
	require.NoError(t, err)
	defer connB.Close()

	_, err = connA.Write([]byte("alpha"))
	require.NoError(t, err)
	_, err = connB.Write([]byte("bravo"))
	require.NoError(t, err)

	bufA := make([]byte, 5)
	_, err = io.ReadFull(connA, bufA)
	require.NoError(t, err)
	require.Equal(t, "alpha", string(bufA))

	bufB := make([]byte, 5)
	_, err = io.ReadFull(connB, bufB)
	require.NoError(t, err)
	require.Equal(t, "bravo", string(bufB))
}

// TestDestinationUnreachableDoesNotAffectSiblings exercises spec §8 scenario
// 4: a refused destination closes only its own pair.
func TestDestinationUnreachableDoesNotAffectSiblings(t *testing.T) {
	dstOK := startEchoServer(t)
	defer dstOK.Close()

	refused, err := addr.ParseHostPort("127.0.0.1:1")
	require.NoError(t, err)
	listenEp, err := addr.ParseHostPort("127.0.0.1:0")
	require.NoError(t, err)
	badTuple, err := config.NewTuple(listenEp, addr.Endpoint{}, refused)
	require.NoError(t, err)

	srv := New(testLogger(), Options{Workers: 2, ConnectTimeout: 200 * time.Millisecond})
	bound, err := srv.Run([]config.Tuple{badTuple, ephemeralTuple(t, dstOK.Addr())})
	require.NoError(t, err)
	defer srv.Shutdown()

	badConn, err := net.Dial("tcp", bound[0].String())
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = badConn.Read(buf)
	require.Error(t, err)

	goodConn, err := net.Dial("tcp", bound[1].String())
	require.NoError(t, err)
	defer goodConn.Close()
	_, err = goodConn.Write([]byte("ok"))
	require.NoError(t, err)
	out := make([]byte, 2)
	_, err = io.ReadFull(goodConn, out)
	require.NoError(t, err)
	require.Equal(t, "ok", string(out))
}
