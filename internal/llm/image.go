package llm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// maxImageSide is the longest edge an uploaded screenshot is allowed to
// keep; anything larger is downscaled before encoding so requests stay
// small and fast to transmit to a local model.
const maxImageSide = 1024

// jpegQuality matches the wire contract: images are base64 JPEGs at
// quality 85.
const jpegQuality = 85

// EncodeImage downsizes img (if needed) to fit within maxImageSide on its
// longest side and returns it as a base64-encoded JPEG string suitable
// for a Message's Images field.
func EncodeImage(img image.Image) (string, error) {
	scaled := fitWithin(img, maxImageSide)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fitWithin returns img unchanged if both dimensions are already within
// maxSide, otherwise a CatmullRom-scaled copy preserving aspect ratio.
func fitWithin(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	var newW, newH int
	if w >= h {
		newW = maxSide
		newH = h * maxSide / w
	} else {
		newH = maxSide
		newW = w * maxSide / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
