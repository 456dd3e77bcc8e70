//go:build windows

package client

import "net"

// sndbufSize is not read on Windows; callers fall back to
// defaultSendBuffer.
func sndbufSize(tc *net.TCPConn) (int, error) { return 0, nil }
