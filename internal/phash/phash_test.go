package phash

import (
	"math/rand"
	"testing"

	"github.com/lanternops/duplexrecorder/internal/model"
)

func solidFrame(width, height int, b, g, r byte) []byte {
	buf := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		buf[i*4+0] = b
		buf[i*4+1] = g
		buf[i*4+2] = r
		buf[i*4+3] = 255
	}
	return buf
}

func TestComputeIdenticalFramesProduceIdenticalHashes(t *testing.T) {
	frame := solidFrame(64, 64, 10, 200, 50)
	h1 := Compute(frame, 64, 64, 64*4)
	h2 := Compute(frame, 64, 64, 64*4)
	if h1 != h2 {
		t.Fatalf("identical frames produced different hashes: %v vs %v", h1, h2)
	}
}

func TestHammingIsAMetric(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	randomHash := func() model.PerceptualHash {
		var h model.PerceptualHash
		for i := range h {
			h[i] = r.Uint64()
		}
		return h
	}

	for i := 0; i < 100; i++ {
		a := randomHash()
		if d := Hamming(a, a); d != 0 {
			t.Fatalf("Hamming(a,a) = %d, want 0", d)
		}

		b := randomHash()
		if Hamming(a, b) != Hamming(b, a) {
			t.Fatalf("Hamming not symmetric for a=%v b=%v", a, b)
		}

		c := randomHash()
		dAC := Hamming(a, c)
		dAB := Hamming(a, b)
		dBC := Hamming(b, c)
		if dAC > dAB+dBC {
			t.Fatalf("triangle inequality violated: dist(a,c)=%d > dist(a,b)=%d + dist(b,c)=%d", dAC, dAB, dBC)
		}
	}
}

func TestComputeUniformFrameIsAllZero(t *testing.T) {
	// A perfectly uniform frame has every sample equal to the mean, so no
	// sample strictly exceeds it: every bit is 0.
	frame := solidFrame(32, 32, 128, 128, 128)
	h := Compute(frame, 32, 32, 32*4)
	if h != (model.PerceptualHash{}) {
		t.Fatalf("uniform frame hash = %v, want all-zero", h)
	}
}
