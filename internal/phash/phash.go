// Package phash computes the 256-bit perceptual hash used by the Context
// Mode change detector and the Hamming-distance metric used to compare
// hashes. The algorithm downscales to 16x16 by nearest neighbor, converts to
// BT.709 luma, and thresholds against the frame mean.
package phash

import (
	"math/bits"

	"github.com/lanternops/duplexrecorder/internal/model"
)

const (
	gridSize    = 16
	sampleCount = gridSize * gridSize // 256
)

// Compute derives a PerceptualHash from a width x height BGRA image (byte 0
// = blue, byte 2 = red, row stride in bytes given by stride).
func Compute(bgra []byte, width, height, stride int) model.PerceptualHash {
	var gray [sampleCount]float64

	for gy := 0; gy < gridSize; gy++ {
		srcY := gy * height / gridSize
		if srcY >= height {
			srcY = height - 1
		}
		rowOff := srcY * stride
		for gx := 0; gx < gridSize; gx++ {
			srcX := gx * width / gridSize
			if srcX >= width {
				srcX = width - 1
			}
			pi := rowOff + srcX*4
			b := float64(bgra[pi+0])
			g := float64(bgra[pi+1])
			r := float64(bgra[pi+2])
			// BT.709 luma.
			gray[gy*gridSize+gx] = 0.2126*r + 0.7152*g + 0.0722*b
		}
	}

	var sum float64
	for _, v := range gray {
		sum += v
	}
	mean := sum / float64(sampleCount)

	var h model.PerceptualHash
	for i, v := range gray {
		if v > mean {
			h[i/64] |= 1 << uint(i%64)
		}
	}
	return h
}

// Hamming returns the Hamming distance between two perceptual hashes: the
// popcount of the XOR of each corresponding word, summed over all four
// words.
func Hamming(a, b model.PerceptualHash) int {
	dist := 0
	for i := 0; i < 4; i++ {
		dist += bits.OnesCount64(a[i] ^ b[i])
	}
	return dist
}
