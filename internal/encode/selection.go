package encode

import (
	"fmt"
	"strings"
)

// friendlyNameTokens is the case-insensitive filter applied to a candidate
// encoder's name before it is considered an H.264 encoder at all.
var friendlyNameTokens = []string{"h264", "h.264", "avc", "x264"}

// vendorPriority orders hardware candidates: NVIDIA first, then Intel, then
// AMD, then anything else whose name passed the H.264 filter.
var vendorPriority = []string{"nvidia", "intel", "amd"}

func isH264Named(name string) bool {
	lower := strings.ToLower(name)
	for _, tok := range friendlyNameTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

func vendorRank(name string) int {
	lower := strings.ToLower(name)
	for i, vendor := range vendorPriority {
		if strings.Contains(lower, vendor) {
			return i
		}
	}
	return len(vendorPriority) // "any other H.264-named encoder"
}

// Select enumerates registered hardware backends, filters to H.264-named
// candidates, and instantiates them in NVIDIA > Intel > AMD > other priority
// order. If none of the hardware candidates construct successfully, it
// retries allowing the software backend. The selection is logging/behavior
// only: the finalized-file contract is identical regardless of which
// backend produced the samples.
func Select(params Params) (Backend, error) {
	mu.Lock()
	candidates := append([]factory(nil), hardwareFactories...)
	soft := softwareFactory
	mu.Unlock()

	named := make([]factory, 0, len(candidates))
	for _, c := range candidates {
		if isH264Named(c.name) {
			named = append(named, c)
		}
	}
	sortByVendorPriority(named)

	var lastErr error
	for _, c := range named {
		backend, err := c.newFn(params)
		if err == nil && backend != nil {
			return backend, nil
		}
		lastErr = err
	}

	if soft == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("encode: no hardware encoder available and no software fallback registered: %w", lastErr)
		}
		return nil, fmt.Errorf("encode: no software fallback registered")
	}
	return soft.newFn(params)
}

func sortByVendorPriority(fs []factory) {
	// Candidate counts are tiny (a handful of GPUs at most); insertion sort
	// keeps this readable without pulling in sort.Slice for three items.
	for i := 1; i < len(fs); i++ {
		j := i
		for j > 0 && vendorRank(fs[j].name) < vendorRank(fs[j-1].name) {
			fs[j], fs[j-1] = fs[j-1], fs[j]
			j--
		}
	}
}
