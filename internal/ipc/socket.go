package ipc

import (
	"os"
	"path/filepath"
)

// DefaultSocketPath returns the platform-appropriate control socket
// location under dataDir.
func DefaultSocketPath(dataDir string) string {
	return filepath.Join(dataDir, socketFileName)
}

// removeStaleSocket best-effort removes a leftover socket file from an
// unclean shutdown before binding a fresh listener.
func removeStaleSocket(path string) {
	_ = os.Remove(path)
}
