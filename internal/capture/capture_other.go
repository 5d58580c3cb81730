//go:build !windows

package capture

func init() {
	NewPlatformCapturer = newUnsupportedCapturer
}

// newUnsupportedCapturer is the non-Windows stub: desktop duplication is a
// Windows-only API, so every other OS build reports ErrNotSupported. The
// Capture Worker's pacing/state-machine logic is still fully exercised on
// these platforms via the injectable Capturer in worker_test.go.
func newUnsupportedCapturer(cfg Config) (Capturer, error) {
	return nil, ErrNotSupported
}
