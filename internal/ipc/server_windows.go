//go:build windows

package ipc

import (
	"fmt"
	"hash/fnv"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

const socketFileName = "control.pipe"

// SDDL: SYSTEM gets full control, Interactive Users get read/write, matching
// the single-local-user trust boundary this control socket serves.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GRGW;;;IU)"

// Listen binds the control socket, a named pipe on Windows. The pipe name
// is derived from path rather than used as a filesystem path, since named
// pipes live in their own \\.\pipe\ namespace.
func Listen(path string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	}
	ln, err := winio.ListenPipe(pipeName(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen pipe %s: %w", path, err)
	}
	return ln, nil
}

// Dial connects to the control socket at path.
func Dial(path string) (net.Conn, error) {
	timeout := 5 * time.Second
	conn, err := winio.DialPipe(pipeName(path), &timeout)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial pipe %s: %w", path, err)
	}
	return conn, nil
}

func pipeName(path string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return fmt.Sprintf(`\\.\pipe\replaybufferd-control-%08x`, h.Sum32())
}
