//go:build !windows

package client

import (
	"net"
	"syscall"
)

// sndbufSize reads the socket's SO_SNDBUF, used to size a session's output
// buffer (spec.md §4.4; falls back to 4096 on any failure).
func sndbufSize(tc *net.TCPConn) (int, error) {
	raw, err := tc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var size int
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		size, sockErr = syscall.GetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF)
	})
	if err != nil {
		return 0, err
	}
	return size, sockErr
}
