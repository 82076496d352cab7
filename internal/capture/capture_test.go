package capture

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nugget/activity-tracker/internal/display"
	"github.com/nugget/activity-tracker/internal/trackererr"
)

type fakeGrabber struct {
	img *image.RGBA
	err error
}

func (f fakeGrabber) CaptureDisplay() (*image.RGBA, error) { return f.img, f.err }
func (f fakeGrabber) CaptureRect(display.Geometry) (*image.RGBA, error) {
	return f.img, f.err
}

type fakeLister struct {
	monitors []display.Monitor
	err      error
}

func (f fakeLister) ListMonitors() ([]display.Monitor, error) { return f.monitors, f.err }

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCaptureScreen_SavesFileAndReturnsHash(t *testing.T) {
	dir := t.TempDir()
	grabber := fakeGrabber{img: solidRGBA(100, 100, color.RGBA{R: 10, G: 20, B: 30, A: 255})}
	lister := fakeLister{monitors: []display.Monitor{{Name: "primary", Primary: true, Width: 1920, Height: 1080}}}

	c := New(dir, grabber, lister)
	at := time.Date(2026, 7, 1, 14, 30, 15, 0, time.UTC)

	result, err := c.CaptureScreen(nil, at)
	if err != nil {
		t.Fatalf("capture screen: %v", err)
	}
	if len(result.DHash) != 16 {
		t.Errorf("dhash length = %d, want 16", len(result.DHash))
	}

	if _, err := os.Stat(result.Filepath); err != nil {
		t.Errorf("expected file at %s: %v", result.Filepath, err)
	}

	wantDir := filepath.Join(dir, "screenshots", "2026", "07", "01")
	if filepath.Dir(result.Filepath) != wantDir {
		t.Errorf("directory = %s, want %s", filepath.Dir(result.Filepath), wantDir)
	}
}

func TestCaptureScreen_NoMonitorsError(t *testing.T) {
	dir := t.TempDir()
	grabber := fakeGrabber{img: solidRGBA(10, 10, color.RGBA{A: 255})}
	lister := fakeLister{monitors: nil}

	c := New(dir, grabber, lister)
	_, err := c.CaptureScreen(nil, time.Now())
	if err != trackererr.NoMonitors {
		t.Errorf("expected NoMonitors, got %v", err)
	}
}

func TestCaptureScreen_DisplayUnavailable(t *testing.T) {
	dir := t.TempDir()
	grabber := fakeGrabber{err: os.ErrPermission}
	lister := fakeLister{monitors: []display.Monitor{{Name: "primary", Primary: true}}}

	c := New(dir, grabber, lister)
	_, err := c.CaptureScreen(nil, time.Now())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !isKind(err, trackererr.DisplayUnavailable) {
		t.Errorf("expected DisplayUnavailable, got %v", err)
	}
}

func isKind(err, kind error) bool {
	type iser interface{ Is(error) bool }
	if w, ok := err.(iser); ok {
		return w.Is(kind)
	}
	return err == kind
}

func TestCroppedPath_Naming(t *testing.T) {
	got := CroppedPath("/data/screenshots/2026/07/01/143015_abcd1234.webp")
	want := "/data/screenshots/2026/07/01/143015_abcd1234_crop.webp"
	if got != want {
		t.Errorf("CroppedPath = %q, want %q", got, want)
	}
}

func TestClampRect_PartiallyOffscreen(t *testing.T) {
	frame := image.Rect(0, 0, 1920, 1080)
	g := display.Geometry{X: 1800, Y: 900, Width: 400, Height: 400}

	clamped := clampRect(g, frame)
	if clamped.Max.X > 1920 || clamped.Max.Y > 1080 {
		t.Errorf("clamped rect exceeds frame: %v", clamped)
	}
}

func TestClampRect_EntirelyOutside(t *testing.T) {
	frame := image.Rect(0, 0, 1920, 1080)
	g := display.Geometry{X: 3000, Y: 3000, Width: 200, Height: 200}

	clamped := clampRect(g, frame)
	if !clamped.Empty() {
		t.Errorf("expected empty rect for fully offscreen geometry, got %v", clamped)
	}
}

func TestDeleteFile_MissingIsNoop(t *testing.T) {
	if err := DeleteFile(filepath.Join(t.TempDir(), "missing.webp")); err != nil {
		t.Errorf("deleting missing file should be a no-op, got %v", err)
	}
}
