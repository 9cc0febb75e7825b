//go:build !robotgo

package screenshot

import (
	"errors"
	"image"
)

// ErrNoNativeCapture is returned when the binary was built without the robotgo tag.
var ErrNoNativeCapture = errors.New("screen capture not compiled in (build with -tags robotgo)")

func nativeGrab() (image.Image, error) {
	return nil, ErrNoNativeCapture
}
