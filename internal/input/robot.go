//go:build robotgo

package input

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// Available reports whether the native injector is compiled in.
const Available = true

// Robot injects input through robotgo.
type Robot struct{}

// NewRobot returns the native injector.
func NewRobot() (Injector, error) {
	return Robot{}, nil
}

func (Robot) MoveTo(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (Robot) ButtonDown(b Button) error {
	if err := robotgo.Toggle(robotButton(b)); err != nil {
		return fmt.Errorf("%s down: %w", b, err)
	}
	return nil
}

func (Robot) ButtonUp(b Button) error {
	if err := robotgo.Toggle(robotButton(b), "up"); err != nil {
		return fmt.Errorf("%s up: %w", b, err)
	}
	return nil
}

func (Robot) KeyPress(k Key) error {
	if err := robotgo.KeyTap(string(k)); err != nil {
		return fmt.Errorf("key %s: %w", k, err)
	}
	return nil
}

func (Robot) TypeText(text string) error {
	robotgo.TypeStr(text)
	return nil
}

func robotButton(b Button) string {
	if b == Middle {
		return "center"
	}
	return string(b)
}
