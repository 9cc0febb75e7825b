//go:build robotgo

package screenshot

import (
	"image"

	"github.com/go-vgo/robotgo"
)

func nativeGrab() (image.Image, error) {
	return robotgo.CaptureImg()
}
