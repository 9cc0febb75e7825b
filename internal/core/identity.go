package core

import "fmt"

// MaxAncestorDepth bounds the captured ancestor path.
const MaxAncestorDepth = 8

// ElementIdentity is a snapshot of a UI element taken at recording time.
// It never references the live tree.
type ElementIdentity struct {
	ProcessID    *uint32  `json:"process_id,omitempty"`
	AutomationID string   `json:"automation_id,omitempty"`
	Name         string   `json:"name,omitempty"`
	ControlType  string   `json:"control_type,omitempty"`
	ClassName    string   `json:"class_name,omitempty"`
	ProcessName  string   `json:"process_name,omitempty"`
	WindowTitle  string   `json:"window_title,omitempty"`
	AncestorPath []string `json:"ancestor_path,omitempty"`
}

// Selector returns a human-readable selector, preferring the automation id.
func (id *ElementIdentity) Selector() string {
	if id == nil {
		return "(unknown element)"
	}
	switch {
	case id.AutomationID != "":
		return fmt.Sprintf("[AutomationId='%s']", id.AutomationID)
	case id.Name != "":
		return fmt.Sprintf("[Name='%s' Type=%s]", id.Name, id.ControlType)
	case id.ClassName != "":
		return fmt.Sprintf("[Class='%s']", id.ClassName)
	default:
		return "(unknown element)"
	}
}

// Usable reports whether any searchable property was captured.
func (id *ElementIdentity) Usable() bool {
	if id == nil {
		return false
	}
	return id.AutomationID != "" || id.Name != "" || id.ClassName != ""
}

// Location names the window or process the element was captured in.
func (id *ElementIdentity) Location() string {
	if id == nil {
		return ""
	}
	if id.WindowTitle != "" {
		return id.WindowTitle
	}
	return id.ProcessName
}

func (id *ElementIdentity) String() string {
	if id == nil {
		return "(no element)"
	}
	controlType := id.ControlType
	if controlType == "" {
		controlType = "?"
	}
	return fmt.Sprintf("%s %s in '%s'", controlType, id.Selector(), id.Location())
}

// TrimAncestors keeps the innermost MaxAncestorDepth entries of path.
func TrimAncestors(path []string) []string {
	if len(path) <= MaxAncestorDepth {
		return path
	}
	return append([]string(nil), path[len(path)-MaxAncestorDepth:]...)
}
