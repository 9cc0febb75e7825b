package screenshot

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCapture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	d := NewDisk(dir, func() (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 3)), nil
	})
	d.now = func() time.Time { return time.Date(2024, 3, 10, 14, 5, 6, 789000000, time.UTC) }

	path, err := d.Capture(7, 2)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "step007_r2_140506_789.png"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestDiskCaptureGrabError(t *testing.T) {
	d := NewDisk(t.TempDir(), func() (image.Image, error) { return nil, errors.New("no display") })
	_, err := d.Capture(1, 1)
	assert.ErrorContains(t, err, "no display")
}
