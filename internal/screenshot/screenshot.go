// Package screenshot saves screen captures taken after failed steps.
package screenshot

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// Capturer stores a capture for a step and returns its path.
type Capturer interface {
	Capture(stepID, repeatIndex int) (string, error)
}

// GrabFunc returns the current screen contents.
type GrabFunc func() (image.Image, error)

// Disk writes PNG captures into a directory.
type Disk struct {
	dir  string
	grab GrabFunc
	now  func() time.Time
}

// NewDisk returns a Capturer writing to dir. A nil grab uses the native screen grabber.
func NewDisk(dir string, grab GrabFunc) *Disk {
	if grab == nil {
		grab = nativeGrab
	}
	return &Disk{dir: dir, grab: grab, now: time.Now}
}

func (d *Disk) Capture(stepID, repeatIndex int) (string, error) {
	img, err := d.grab()
	if err != nil {
		return "", fmt.Errorf("grab screen: %w", err)
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	name := fmt.Sprintf("step%03d_r%d_%s.png", stepID, repeatIndex, d.now().Format("150405_000"))
	path := filepath.Join(d.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create screenshot: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode screenshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close screenshot: %w", err)
	}
	return path, nil
}
