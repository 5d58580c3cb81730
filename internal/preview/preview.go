// Package preview models the optional UI preview side-stage's consumer
// contract. The rendering/streaming algorithm is out of scope here; this
// package only defines the sink interface a real UI overlay would
// implement.
package preview

import "github.com/lanternops/duplexrecorder/internal/model"

// Sink consumes BGRA-forwarded ProcessedFrames for display. Implementations
// are expected to be best-effort: the router's drop-oldest preview queue
// already sheds load before frames reach a Sink, so Accept should not block.
type Sink interface {
	Accept(frame model.ProcessedFrame)
}

// Discard is a Sink that drops every frame; used when no UI is attached.
type Discard struct{}

// Accept discards frame.
func (Discard) Accept(frame model.ProcessedFrame) {}
