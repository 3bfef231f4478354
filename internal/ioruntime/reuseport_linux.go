//go:build linux

package ioruntime

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl sets SO_REUSEPORT on the acceptor's listening socket, a
// Linux-specific sharpening of acceptor.cpp's reuse_address(true) option: it
// lets multiple acceptor processes/goroutine groups share one port instead
// of only permitting a fast rebind after restart.
func reusePortControl(network, address string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
