//go:build !linux

package ioruntime

import "syscall"

// reusePortControl is a no-op outside Linux, which has no SO_REUSEPORT
// equivalent to set.
func reusePortControl(network, address string, c syscall.RawConn) error {
	return nil
}
