//go:build linux || darwin || freebsd

package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSetReuseAddr is installed as a net.ListenConfig/net.Dialer Control
// callback; it runs on the raw fd after socket() but before bind/connect.
func controlSetReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
