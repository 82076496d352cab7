// Package phash computes 64-bit difference hashes (dhash) for
// near-duplicate screenshot detection. The algorithm and its tuning are
// intentionally unopinionated about what counts as "too similar to
// keep" — that policy threshold belongs to the caller (capture, C3),
// not to this package.
package phash

import (
	"fmt"
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

const (
	hashWidth  = 9
	hashHeight = 8
)

// Hash computes the 64-bit difference hash of img: resize to 9x8,
// greyscale, then bit i = left_pixel > right_pixel within each row.
func Hash(img image.Image) uint64 {
	small := resize(img, hashWidth, hashHeight)

	var hash uint64
	bit := uint(0)
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth-1; x++ {
			left := grayAt(small, x, y)
			right := grayAt(small, x+1, y)
			if left > right {
				hash |= 1 << bit
			}
			bit++
		}
	}
	return hash
}

// String renders a hash as 16 lowercase hex characters.
func String(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// Parse parses a 16-hex-character hash string back into a uint64.
func Parse(s string) (uint64, error) {
	var h uint64
	_, err := fmt.Sscanf(s, "%016x", &h)
	if err != nil {
		return 0, fmt.Errorf("parse dhash %q: %w", s, err)
	}
	return h, nil
}

// Distance returns the Hamming distance between two hashes: the number
// of differing bits.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

func resize(img image.Image, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func grayAt(img *image.Gray, x, y int) uint8 {
	return img.GrayAt(x, y).Y
}
