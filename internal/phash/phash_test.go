package phash

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(w, h int, c color.Gray) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, c)
		}
	}
	return img
}

func gradientImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestHash_IdenticalImagesMatch(t *testing.T) {
	img := gradientImage(200, 150)
	h1 := Hash(img)
	h2 := Hash(img)
	if h1 != h2 {
		t.Errorf("hash of identical image differs: %x vs %x", h1, h2)
	}
	if Distance(h1, h2) != 0 {
		t.Errorf("distance of identical hashes = %d, want 0", Distance(h1, h2))
	}
}

func TestHash_SolidColorHasZeroDistance(t *testing.T) {
	a := solidImage(64, 64, color.Gray{Y: 100})
	b := solidImage(64, 64, color.Gray{Y: 100})
	if Distance(Hash(a), Hash(b)) != 0 {
		t.Error("identical solid images should hash identically")
	}
}

func TestHash_DifferentImagesDiffer(t *testing.T) {
	gradient := gradientImage(200, 150)
	solid := solidImage(200, 150, color.Gray{Y: 128})

	d := Distance(Hash(gradient), Hash(solid))
	if d == 0 {
		t.Error("expected distinct images to produce different hashes")
	}
}

func TestStringAndParse_RoundTrip(t *testing.T) {
	h := Hash(gradientImage(64, 64))
	s := String(h)
	if len(s) != 16 {
		t.Fatalf("hash string length = %d, want 16", len(s))
	}

	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != h {
		t.Errorf("round trip: got %x, want %x", parsed, h)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	a := Hash(gradientImage(64, 64))
	b := Hash(solidImage(64, 64, color.Gray{Y: 200}))

	if Distance(a, b) != Distance(b, a) {
		t.Error("distance should be symmetric")
	}
}

func TestDistance_MaxForInvertedBits(t *testing.T) {
	var a uint64 = 0
	b := ^a
	if Distance(a, b) != 64 {
		t.Errorf("distance of fully inverted hashes = %d, want 64", Distance(a, b))
	}
}
