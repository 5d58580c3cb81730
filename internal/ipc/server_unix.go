//go:build !windows

package ipc

import (
	"net"
)

const socketFileName = "control.sock"

// Listen binds the control socket at path, a Unix domain socket on every
// supported non-Windows platform.
func Listen(path string) (net.Listener, error) {
	removeStaleSocket(path)
	return net.Listen("unix", path)
}

// Dial connects to the control socket at path.
func Dial(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}
