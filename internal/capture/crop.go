package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"os"

	"github.com/chai2010/webp"

	"github.com/nugget/activity-tracker/internal/display"
)

// GetCroppedPath produces a sibling "{name}_crop.webp" for screenshotPath,
// cropped to rect and cached on disk. If rect degenerates to the full
// frame or lies entirely outside it, the original path is returned
// unchanged. A rectangle that is only partially off-screen is clamped to
// the frame bounds before cropping.
func (c *Capturer) GetCroppedPath(screenshotPath string, rect display.Geometry) (string, error) {
	cropPath := CroppedPath(screenshotPath)

	if _, err := os.Stat(cropPath); err == nil {
		return cropPath, nil
	}

	data, err := os.ReadFile(screenshotPath)
	if err != nil {
		return "", fmt.Errorf("read screenshot for crop: %w", err)
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode screenshot for crop: %w", err)
	}

	frame := img.Bounds()
	clamped := clampRect(rect, frame)

	if clamped.Empty() || clamped == frame {
		return screenshotPath, nil
	}

	cropped := image.NewRGBA(image.Rect(0, 0, clamped.Dx(), clamped.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, clamped.Min, draw.Src)

	if err := saveWebPAt(cropPath, cropped, c.quality); err != nil {
		return "", fmt.Errorf("save cropped screenshot: %w", err)
	}

	return cropPath, nil
}

func saveWebPAt(path string, img image.Image, quality float32) error {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// clampRect converts a window geometry into an image.Rectangle clipped
// to frame's bounds. A rectangle entirely outside frame becomes empty.
func clampRect(g display.Geometry, frame image.Rectangle) image.Rectangle {
	rect := image.Rect(g.X, g.Y, g.X+g.Width, g.Y+g.Height)
	return rect.Intersect(frame)
}
