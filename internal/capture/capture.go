// Package capture implements the screenshot capture pipeline: grab
// pixels, dhash them before saving, persist as WebP under a
// date-partitioned directory tree, and produce cached window-region
// crops on demand.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"

	"github.com/nugget/activity-tracker/internal/display"
	"github.com/nugget/activity-tracker/internal/phash"
	"github.com/nugget/activity-tracker/internal/trackererr"
)

// Grabber captures pixels for a region, or the primary monitor if region
// is nil. Implemented by *display.ScreenProvider in production.
type Grabber interface {
	CaptureDisplay() (*image.RGBA, error)
	CaptureRect(geom display.Geometry) (*image.RGBA, error)
}

// MonitorLister enumerates monitors, used to fail fast with NoMonitors
// when discovery finds nothing.
type MonitorLister interface {
	ListMonitors() ([]display.Monitor, error)
}

// Result is the outcome of a successful capture.
type Result struct {
	Filepath string
	DHash    string
}

// Capturer owns the data directory and capture policy.
type Capturer struct {
	dataDir string
	grabber Grabber
	lister  MonitorLister

	quality float32
}

// New creates a Capturer rooted at dataDir (files live under
// dataDir/screenshots/...).
func New(dataDir string, grabber Grabber, lister MonitorLister) *Capturer {
	return &Capturer{dataDir: dataDir, grabber: grabber, lister: lister, quality: 80}
}

// CaptureScreen grabs a frame — either region or the primary monitor —
// computes its dhash, and saves it as WebP quality 80 under
// data_dir/screenshots/YYYY/MM/DD/{HHMMSS}_{hash8}.webp. The hash is
// computed before the file is written, matching the documented ordering
// contract so a caller can discard a near-duplicate without ever
// touching disk only when it chooses to — CaptureScreen itself always
// writes; callers needing dedup compare the returned hash to the
// previous one and delete the file themselves (see
// internal/daemon's capture loop).
func (c *Capturer) CaptureScreen(region *display.Geometry, at time.Time) (*Result, error) {
	monitors, err := c.lister.ListMonitors()
	if err != nil {
		return nil, trackererr.Wrap(trackererr.DisplayUnavailable, "list monitors", err)
	}
	if len(monitors) == 0 {
		return nil, trackererr.NoMonitors
	}

	var img *image.RGBA
	if region != nil {
		img, err = c.grabber.CaptureRect(*region)
	} else {
		img, err = c.grabber.CaptureDisplay()
	}
	if err != nil {
		return nil, trackererr.Wrap(trackererr.DisplayUnavailable, "capture pixels", err)
	}

	hash := phash.Hash(img)
	hashStr := phash.String(hash)

	path := screenshotPath(c.dataDir, at, hashStr)
	if err := saveWebP(path, img, c.quality); err != nil {
		return nil, trackererr.Wrap(trackererr.TransientIO, "save screenshot", err)
	}

	return &Result{Filepath: path, DHash: hashStr}, nil
}

// screenshotPath builds data_dir/screenshots/YYYY/MM/DD/{HHMMSS}_{hash8}.webp.
func screenshotPath(dataDir string, at time.Time, hashStr string) string {
	dir := filepath.Join(dataDir, "screenshots", at.Format("2006"), at.Format("01"), at.Format("02"))
	name := fmt.Sprintf("%s_%s.webp", at.Format("150405"), hashStr[:8])
	return filepath.Join(dir, name)
}

func saveWebP(path string, img image.Image, quality float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write screenshot file: %w", err)
	}
	return nil
}

// DeleteFile removes a previously-saved screenshot, used by the caller
// when dedup determines the frame is a near-duplicate and should not be
// retained.
func DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete screenshot: %w", err)
	}
	return nil
}

// CroppedPath returns the on-disk path for a window-region crop sibling
// to the given screenshot path: "{name}_crop.webp".
func CroppedPath(originalPath string) string {
	ext := filepath.Ext(originalPath)
	base := strings.TrimSuffix(originalPath, ext)
	return base + "_crop" + ext
}
