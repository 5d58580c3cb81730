package colorconv

import "testing"

// solidBGRA builds a width x height BGRA buffer (tightly packed, stride =
// width*4) where every pixel is the same b,g,r byte triple.
func solidBGRA(width, height int, b, g, r byte) []byte {
	buf := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		buf[i*4+0] = b
		buf[i*4+1] = g
		buf[i*4+2] = r
		buf[i*4+3] = 255
	}
	return buf
}

func TestBGRAToNV12Length(t *testing.T) {
	cases := []struct{ w, h int }{
		{2, 2},
		{4, 2},
		{16, 16},
		{1920, 1080},
	}
	for _, c := range cases {
		pool := NewPool()
		bgra := solidBGRA(c.w, c.h, 0, 0, 0)
		nv12 := BGRAToNV12(pool, bgra, c.w, c.h, c.w*4)
		want := c.w * c.h * 3 / 2
		if len(nv12) != want {
			t.Errorf("%dx%d: len(nv12) = %d, want %d", c.w, c.h, len(nv12), want)
		}
	}
}

func TestBGRAToNV12Deterministic(t *testing.T) {
	const w, h = 8, 6
	bgra := make([]byte, w*h*4)
	for i := range bgra {
		bgra[i] = byte(i * 37)
	}

	pool := NewPool()
	first := append([]byte(nil), BGRAToNV12(pool, bgra, w, h, w*4)...)

	// Fresh pool each call so reuse of the same underlying buffer can't
	// mask a conversion that fails to overwrite every byte.
	pool2 := NewPool()
	second := append([]byte(nil), BGRAToNV12(pool2, bgra, w, h, w*4)...)

	if len(first) != len(second) {
		t.Fatalf("len mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("byte[%d]: %d vs %d on repeated conversion of the same input", i, first[i], second[i])
		}
	}
}

func TestBGRAToNV12SolidColors(t *testing.T) {
	pool := NewPool()

	black := BGRAToNV12(pool, solidBGRA(2, 2, 0, 0, 0), 2, 2, 2*4)
	for i, v := range black {
		want := byte(16)
		if i >= 4 {
			want = 128 // U/V plane
		}
		if v != want {
			t.Errorf("black byte[%d] = %d, want %d", i, v, want)
		}
	}

	white := BGRAToNV12(pool, solidBGRA(2, 2, 255, 255, 255), 2, 2, 2*4)
	for i, v := range white {
		want := byte(235)
		if i >= 4 {
			want = 128
		}
		if v != want {
			t.Errorf("white byte[%d] = %d, want %d", i, v, want)
		}
	}
}
