package uitree

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"clickreplay/internal/core"
)

// MemDesktop is an in-memory tree used by the dry-run backend and tests.
// Windows added later are considered on top of earlier ones.
type MemDesktop struct {
	mu      sync.RWMutex
	root    *MemElement
	windows []*MemElement
	names   map[uint32]string
}

// NewMemDesktop returns an empty desktop.
func NewMemDesktop() *MemDesktop {
	d := &MemDesktop{names: make(map[uint32]string)}
	d.root = &MemElement{desktop: d, props: Properties{Name: "Desktop", ControlType: "Pane"}}
	return d
}

// AddWindow attaches a top-level window owned by pid.
func (d *MemDesktop) AddWindow(pid uint32, processName string, props Properties) *MemElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	props.ProcessID = pid
	if props.ControlType == "" {
		props.ControlType = "Window"
	}
	w := &MemElement{desktop: d, props: props}
	d.root.children = append(d.root.children, w)
	d.windows = append(d.windows, w)
	d.names[pid] = processName
	return w
}

// RemoveWindow detaches w and everything under it.
func (d *MemDesktop) RemoveWindow(w *MemElement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root.children = without(d.root.children, w)
	d.windows = without(d.windows, w)
}

func without(list []*MemElement, e *MemElement) []*MemElement {
	out := list[:0:0]
	for _, c := range list {
		if c != e {
			out = append(out, c)
		}
	}
	return out
}

func (d *MemDesktop) Root() (Element, error) {
	return d.root, nil
}

func (d *MemDesktop) TopLevelWindows(pid uint32) ([]Element, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Element
	for _, w := range d.windows {
		if w.props.ProcessID == pid {
			out = append(out, w)
		}
	}
	return out, nil
}

func (d *MemDesktop) ProcessWindows(processName string) ([]Element, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Element
	for _, w := range d.windows {
		if strings.EqualFold(d.names[w.props.ProcessID], processName) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (d *MemDesktop) ProcessAtPoint(x, y int) (uint32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := len(d.windows) - 1; i >= 0; i-- {
		if d.windows[i].props.Bounds.Contains(x, y) {
			return d.windows[i].props.ProcessID, nil
		}
	}
	return 0, fmt.Errorf("%w (%d,%d)", ErrNoProcessAtPoint, x, y)
}

// MemElement is a node of a MemDesktop. It records interactions for inspection.
type MemElement struct {
	desktop  *MemDesktop
	props    Properties
	children []*MemElement

	valueSupported bool
	value          string
	focused        bool
	clicks         []core.MouseButton
}

// Add attaches a child element that inherits the owning process.
func (e *MemElement) Add(props Properties) *MemElement {
	e.desktop.mu.Lock()
	defer e.desktop.mu.Unlock()
	props.ProcessID = e.props.ProcessID
	child := &MemElement{desktop: e.desktop, props: props}
	e.children = append(e.children, child)
	return child
}

// EnableValue makes the element accept SetValue.
func (e *MemElement) EnableValue() *MemElement {
	e.desktop.mu.Lock()
	defer e.desktop.mu.Unlock()
	e.valueSupported = true
	return e
}

// Value returns the last value set on the element.
func (e *MemElement) Value() string {
	e.desktop.mu.RLock()
	defer e.desktop.mu.RUnlock()
	return e.value
}

// Clicks returns the buttons clicked on the element so far.
func (e *MemElement) Clicks() []core.MouseButton {
	e.desktop.mu.RLock()
	defer e.desktop.mu.RUnlock()
	return append([]core.MouseButton(nil), e.clicks...)
}

// Focused reports whether Focus was called.
func (e *MemElement) Focused() bool {
	e.desktop.mu.RLock()
	defer e.desktop.mu.RUnlock()
	return e.focused
}

func (e *MemElement) Properties() (Properties, error) {
	e.desktop.mu.RLock()
	defer e.desktop.mu.RUnlock()
	return e.props, nil
}

func (e *MemElement) FindFirst(cond Condition) (Element, error) {
	e.desktop.mu.RLock()
	defer e.desktop.mu.RUnlock()
	if found := e.findFirst(cond); found != nil {
		return found, nil
	}
	return nil, nil
}

func (e *MemElement) findFirst(cond Condition) *MemElement {
	for _, c := range e.children {
		if cond.Matches(c.props) {
			return c
		}
		if found := c.findFirst(cond); found != nil {
			return found
		}
	}
	return nil
}

func (e *MemElement) Focus() error {
	e.desktop.mu.Lock()
	defer e.desktop.mu.Unlock()
	e.focused = true
	return nil
}

func (e *MemElement) Click(button core.MouseButton) error {
	switch button {
	case core.ButtonLeft, core.ButtonRight, core.ButtonDouble:
	default:
		return fmt.Errorf("%s click: %w", button, ErrPatternUnsupported)
	}
	e.desktop.mu.Lock()
	defer e.desktop.mu.Unlock()
	e.clicks = append(e.clicks, button)
	return nil
}

func (e *MemElement) SupportsValue() bool {
	e.desktop.mu.RLock()
	defer e.desktop.mu.RUnlock()
	return e.valueSupported
}

func (e *MemElement) SetValue(text string) error {
	e.desktop.mu.Lock()
	defer e.desktop.mu.Unlock()
	if !e.valueSupported {
		return fmt.Errorf("value: %w", ErrPatternUnsupported)
	}
	e.value = text
	return nil
}

// FixtureNode describes one element in a desktop fixture file.
type FixtureNode struct {
	Properties
	Value    bool          `json:"value,omitempty"`
	Children []FixtureNode `json:"children,omitempty"`
}

// FixtureWindow describes one top-level window in a desktop fixture file.
type FixtureWindow struct {
	PID     uint32 `json:"pid"`
	Process string `json:"process"`
	FixtureNode
}

// LoadMemDesktop builds a desktop from a JSON array of windows.
func LoadMemDesktop(r io.Reader) (*MemDesktop, error) {
	var windows []FixtureWindow
	if err := json.NewDecoder(r).Decode(&windows); err != nil {
		return nil, fmt.Errorf("decode desktop fixture: %w", err)
	}
	d := NewMemDesktop()
	for _, w := range windows {
		if w.PID == 0 {
			return nil, fmt.Errorf("fixture window %q: pid is required", w.Name)
		}
		win := d.AddWindow(w.PID, w.Process, w.Properties)
		if w.Value {
			win.EnableValue()
		}
		addFixtureChildren(win, w.Children)
	}
	return d, nil
}

func addFixtureChildren(parent *MemElement, nodes []FixtureNode) {
	for _, n := range nodes {
		child := parent.Add(n.Properties)
		if n.Value {
			child.EnableValue()
		}
		addFixtureChildren(child, n.Children)
	}
}

// InspectAt snapshots the innermost element whose bounds contain the point,
// or returns nil when no window covers it.
func (d *MemDesktop) InspectAt(x, y int) *core.ElementIdentity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := len(d.windows) - 1; i >= 0; i-- {
		w := d.windows[i]
		if !w.props.Bounds.Contains(x, y) {
			continue
		}
		path := []string{describe(w.props)}
		hit := w
		for {
			next := hit.childAt(x, y)
			if next == nil {
				break
			}
			path = append(path, describe(next.props))
			hit = next
		}
		pid := hit.props.ProcessID
		return &core.ElementIdentity{
			ProcessID:    &pid,
			AutomationID: hit.props.AutomationID,
			Name:         hit.props.Name,
			ControlType:  hit.props.ControlType,
			ClassName:    hit.props.ClassName,
			ProcessName:  d.names[pid],
			WindowTitle:  w.props.Name,
			AncestorPath: core.TrimAncestors(path[:len(path)-1]),
		}
	}
	return nil
}

func (e *MemElement) childAt(x, y int) *MemElement {
	for i := len(e.children) - 1; i >= 0; i-- {
		if e.children[i].props.Bounds.Contains(x, y) {
			return e.children[i]
		}
	}
	return nil
}

func describe(p Properties) string {
	switch {
	case p.AutomationID != "":
		return fmt.Sprintf("%s#%s", p.ControlType, p.AutomationID)
	case p.Name != "":
		return fmt.Sprintf("%s '%s'", p.ControlType, p.Name)
	default:
		return p.ControlType
	}
}
