// Package dedup fingerprints rendered pages with a 64-bit difference hash
// and matches near-identical scans so duplicates skip OCR and captioning.
package dedup

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

// Hash64 is a 64-bit perceptual fingerprint stored as two 32-bit halves.
// Bit r*8+c compares grid pixel (c,r) against its right neighbor.
type Hash64 struct {
	Hi uint32 // bits 0..31
	Lo uint32 // bits 32..63
}

const (
	gridW = 9
	gridH = 8
)

// DHash downsamples img to a 9x8 grayscale grid and sets one bit per
// right-neighbor luminance comparison.
func DHash(img image.Image) Hash64 {
	gray := image.NewGray(image.Rect(0, 0, gridW, gridH))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	var h Hash64
	for r := 0; r < gridH; r++ {
		for c := 0; c < gridW-1; c++ {
			if gray.GrayAt(c, r).Y > gray.GrayAt(c+1, r).Y {
				idx := uint(r*(gridW-1) + c)
				if idx < 32 {
					h.Hi |= 1 << idx
				} else {
					h.Lo |= 1 << (idx - 32)
				}
			}
		}
	}
	return h
}

// Distance is the Hamming distance between two hashes, 0..64. Symmetric.
func Distance(a, b Hash64) int {
	return bits.OnesCount32(a.Hi^b.Hi) + bits.OnesCount32(a.Lo^b.Lo)
}

// Similarity maps distance onto [0,1]; 1 means identical fingerprints.
func Similarity(a, b Hash64) float64 {
	return 1 - float64(Distance(a, b))/64
}
