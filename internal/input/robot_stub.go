//go:build !robotgo

package input

import "errors"

// Available reports whether the native injector is compiled in.
const Available = false

// ErrNoNativeInput is returned when the binary was built without the robotgo tag.
var ErrNoNativeInput = errors.New("native input not compiled in (build with -tags robotgo)")

// NewRobot returns the native injector.
func NewRobot() (Injector, error) {
	return nil, ErrNoNativeInput
}
