// Package uitree abstracts the live accessibility tree that recorded
// element identities are resolved against during playback.
package uitree

import (
	"errors"
	"strings"

	"clickreplay/internal/core"
)

var (
	// ErrPatternUnsupported is returned when an element lacks the requested interaction.
	ErrPatternUnsupported = errors.New("pattern not supported by element")
	// ErrUnsupported is returned by backends that have no UI tree access.
	ErrUnsupported = errors.New("ui tree not available on this backend")
	// ErrNoProcessAtPoint is returned when no window covers a screen point.
	ErrNoProcessAtPoint = errors.New("no process at point")
)

// Rect is a screen-space bounding box.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the midpoint of the box.
func (r Rect) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Contains reports whether the point lies inside the box.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Properties is a point-in-time read of an element's searchable attributes.
type Properties struct {
	AutomationID string `json:"automation_id,omitempty"`
	Name         string `json:"name,omitempty"`
	ControlType  string `json:"control_type,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	ProcessID    uint32 `json:"process_id,omitempty"`
	Bounds       Rect   `json:"bounds"`
}

// Condition selects elements; every non-empty field must match.
type Condition struct {
	AutomationID string
	Name         string
	ControlType  string
	ClassName    string
}

// Matches reports whether p satisfies c. Control types compare case-insensitively.
func (c Condition) Matches(p Properties) bool {
	if c.AutomationID != "" && c.AutomationID != p.AutomationID {
		return false
	}
	if c.Name != "" && c.Name != p.Name {
		return false
	}
	if c.ControlType != "" && !strings.EqualFold(c.ControlType, p.ControlType) {
		return false
	}
	if c.ClassName != "" && c.ClassName != p.ClassName {
		return false
	}
	return true
}

// Element is a transient handle into the live tree. Handles must not be
// retained across polls.
type Element interface {
	Properties() (Properties, error)
	// FindFirst returns the first descendant matching cond in document order,
	// or nil when there is none.
	FindFirst(cond Condition) (Element, error)
	Focus() error
	// Click performs a left, right or double click through the element.
	// Other buttons return ErrPatternUnsupported.
	Click(button core.MouseButton) error
	SupportsValue() bool
	SetValue(text string) error
}

// Desktop is the entry point into the live tree.
type Desktop interface {
	Root() (Element, error)
	TopLevelWindows(pid uint32) ([]Element, error)
	ProcessWindows(processName string) ([]Element, error)
	ProcessAtPoint(x, y int) (uint32, error)
}

// Unsupported is a Desktop for backends without tree access. Element playback
// fails to resolve and scoped coordinate steps cannot be validated.
type Unsupported struct{}

func (Unsupported) Root() (Element, error)                    { return nil, ErrUnsupported }
func (Unsupported) TopLevelWindows(uint32) ([]Element, error) { return nil, ErrUnsupported }
func (Unsupported) ProcessWindows(string) ([]Element, error)  { return nil, ErrUnsupported }
func (Unsupported) ProcessAtPoint(int, int) (uint32, error)   { return 0, ErrUnsupported }
