package engine

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

func acceptedConn(t *testing.T) (clientApp net.Conn, accepted net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()
	clientApp, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	accepted = <-acceptCh
	return clientApp, accepted
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
			go func(c net.Conn) {
				_, _ = io.Copy(c, c)
				_ = c.Close()
			}(conn)
		}
	}()
	return ln
}

func TestAdoptAcceptedForwardsTraffic(t *testing.T) {
	dstLn := startEchoServer(t)
	defer dstLn.Close()

	dstEp, err := addr.ParseHostPort(dstLn.Addr().String())
	require.NoError(t, err)
	tuple, err := config.NewTuple(addr.Endpoint{}, addr.Endpoint{}, dstEp)
	require.NoError(t, err)

	log := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.Disabled)
	e := New(0, log, 128*1024, 2*time.Second)

	clientApp, accepted := acceptedConn(t)
	e.AdoptAccepted(accepted, tuple)

	require.Eventually(t, func() bool { return e.LivePairs() == 1 }, time.Second, 10*time.Millisecond)

	_, err = clientApp.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(clientApp, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	_ = clientApp.Close()
	require.Eventually(t, func() bool { return e.LivePairs() == 0 }, time.Second, 10*time.Millisecond)
}

func TestAdoptAcceptedClosesOnConnectFailure(t *testing.T) {
	unreachable, err := addr.ParseHostPort("127.0.0.1:1")
	require.NoError(t, err)
	tuple, err := config.NewTuple(addr.Endpoint{}, addr.Endpoint{}, unreachable)
	require.NoError(t, err)

	log := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.Disabled)
	e := New(0, log, 128*1024, 200*time.Millisecond)

	clientApp, accepted := acceptedConn(t)
	e.AdoptAccepted(accepted, tuple)

	buf := make([]byte, 1)
	_, err = clientApp.Read(buf)
	require.Error(t, err)
	require.EqualValues(t, 0, e.LivePairs())
}
