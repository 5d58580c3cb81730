// Package snapshot writes Context Mode still images to disk: JPEG encoding
// at the configured quality from a BGRA frame buffer.
package snapshot

import (
	"bytes"
	"image"
	"image/jpeg"
)

// bgraToRGBA converts a BGRA buffer (byte 0 = blue, byte 2 = red) into a
// standard library *image.RGBA for use with image/jpeg.
func bgraToRGBA(bgra []byte, width, height, stride int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		srcRow := y * stride
		dstRow := y * img.Stride
		for x := 0; x < width; x++ {
			si := srcRow + x*4
			di := dstRow + x*4
			img.Pix[di+0] = bgra[si+2] // R
			img.Pix[di+1] = bgra[si+1] // G
			img.Pix[di+2] = bgra[si+0] // B
			img.Pix[di+3] = 255
		}
	}
	return img
}

// EncodeJPEG encodes a BGRA frame to JPEG bytes at the given quality
// (1-100). The Change Detector calls this at the configured JPEG quality,
// 85 by default.
func EncodeJPEG(bgra []byte, width, height, stride, quality int) ([]byte, error) {
	img := bgraToRGBA(bgra, width, height, stride)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
