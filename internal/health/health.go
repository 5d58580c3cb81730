// Package health samples disk and system memory usage backing the
// `status` CLI subcommand, in the same collector-struct idiom used
// elsewhere in this lineage for gopsutil-based metrics collection.
package health

import (
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lanternops/duplexrecorder/internal/model"
)

// Snapshot is the point-in-time resource reading the status command prints.
type Snapshot struct {
	DiskPercent    float64
	DiskFreeGB     float64
	RAMPercent     float64
	FocusSegments  int
	FocusDuration  float64 // seconds
	ContextFrames  int
	EncoderFailed  bool
	CurrentMode    string
}

// Collector samples gopsutil disk/memory stats for a given data directory,
// combined with in-process pipeline state supplied by the caller.
type Collector struct {
	dataDir string
}

// NewCollector creates a Collector sampling disk usage at dataDir.
func NewCollector(dataDir string) *Collector {
	return &Collector{dataDir: dataDir}
}

// Collect samples disk/RAM usage and merges it with the supplied pipeline
// counters into a Snapshot.
func (c *Collector) Collect(mode model.Mode, focusSegments int, focusDuration float64, contextFrames int, encoderFailed bool) (Snapshot, error) {
	snap := Snapshot{
		FocusSegments: focusSegments,
		FocusDuration: focusDuration,
		ContextFrames: contextFrames,
		EncoderFailed: encoderFailed,
		CurrentMode:   mode.String(),
	}

	if usage, err := disk.Usage(c.dataDir); err == nil {
		snap.DiskPercent = usage.UsedPercent
		snap.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		snap.RAMPercent = vmem.UsedPercent
	}

	return snap, nil
}
