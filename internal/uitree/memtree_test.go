package uitree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickreplay/internal/core"
)

func TestMemDesktopFindFirstDocumentOrder(t *testing.T) {
	d := NewMemDesktop()
	w := d.AddWindow(10, "notepad", Properties{Name: "Untitled", Bounds: Rect{0, 0, 100, 100}})
	panel := w.Add(Properties{Name: "panel", ControlType: "Pane"})
	first := panel.Add(Properties{Name: "OK", ControlType: "Button"})
	w.Add(Properties{Name: "OK", ControlType: "Button"})

	root, err := d.Root()
	require.NoError(t, err)
	found, err := root.FindFirst(Condition{Name: "OK", ControlType: "button"})
	require.NoError(t, err)
	assert.Same(t, first, found)

	none, err := root.FindFirst(Condition{AutomationID: "missing"})
	require.NoError(t, err)
	assert.Nil(t, none)

	props, err := first.Properties()
	require.NoError(t, err)
	assert.Equal(t, uint32(10), props.ProcessID)
}

func TestMemDesktopWindowsAndPoint(t *testing.T) {
	d := NewMemDesktop()
	a := d.AddWindow(1, "App.exe", Properties{Bounds: Rect{0, 0, 200, 200}})
	d.AddWindow(2, "other", Properties{Bounds: Rect{100, 100, 200, 200}})

	wins, err := d.TopLevelWindows(1)
	require.NoError(t, err)
	assert.Len(t, wins, 1)

	wins, err = d.ProcessWindows("app.EXE")
	require.NoError(t, err)
	assert.Len(t, wins, 1)

	pid, err := d.ProcessAtPoint(150, 150)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), pid, "later windows are on top")

	pid, err = d.ProcessAtPoint(50, 50)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pid)

	_, err = d.ProcessAtPoint(500, 500)
	assert.ErrorIs(t, err, ErrNoProcessAtPoint)

	d.RemoveWindow(a)
	wins, err = d.TopLevelWindows(1)
	require.NoError(t, err)
	assert.Empty(t, wins)
}

func TestMemElementInteractions(t *testing.T) {
	d := NewMemDesktop()
	w := d.AddWindow(1, "app", Properties{})
	edit := w.Add(Properties{ClassName: "Edit"})

	assert.False(t, edit.SupportsValue())
	assert.ErrorIs(t, edit.SetValue("x"), ErrPatternUnsupported)

	edit.EnableValue()
	require.NoError(t, edit.SetValue("hello"))
	assert.Equal(t, "hello", edit.Value())

	require.NoError(t, edit.Click(core.ButtonDouble))
	assert.ErrorIs(t, edit.Click(core.ButtonMiddle), ErrPatternUnsupported)
	assert.Equal(t, []core.MouseButton{core.ButtonDouble}, edit.Clicks())
}

func TestLoadMemDesktop(t *testing.T) {
	fixture := `[
	  {"pid": 42, "process": "calc", "name": "Calculator", "bounds": {"x":0,"y":0,"width":300,"height":400},
	   "children": [
	     {"automation_id": "num1Button", "name": "One", "control_type": "Button"},
	     {"class_name": "Edit", "value": true}
	   ]}
	]`
	d, err := LoadMemDesktop(strings.NewReader(fixture))
	require.NoError(t, err)

	wins, err := d.ProcessWindows("calc")
	require.NoError(t, err)
	require.Len(t, wins, 1)

	btn, err := wins[0].FindFirst(Condition{AutomationID: "num1Button"})
	require.NoError(t, err)
	require.NotNil(t, btn)

	edit, err := wins[0].FindFirst(Condition{ClassName: "Edit"})
	require.NoError(t, err)
	require.NotNil(t, edit)
	assert.True(t, edit.SupportsValue())

	_, err = LoadMemDesktop(strings.NewReader(`[{"process":"x"}]`))
	assert.Error(t, err)
}

func TestUnsupportedDesktop(t *testing.T) {
	var d Desktop = Unsupported{}
	_, err := d.Root()
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = d.ProcessAtPoint(1, 1)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestInspectAt(t *testing.T) {
	d := NewMemDesktop()
	w := d.AddWindow(5, "notepad", Properties{Name: "Untitled - Notepad", Bounds: Rect{0, 0, 400, 300}})
	pane := w.Add(Properties{ControlType: "Pane", AutomationID: "main", Bounds: Rect{0, 0, 400, 300}})
	pane.Add(Properties{ControlType: "Edit", ClassName: "Edit", Name: "Text Editor", Bounds: Rect{10, 10, 380, 280}})

	id := d.InspectAt(50, 50)
	require.NotNil(t, id)
	assert.Equal(t, "Text Editor", id.Name)
	assert.Equal(t, "Edit", id.ClassName)
	assert.Equal(t, "notepad", id.ProcessName)
	assert.Equal(t, "Untitled - Notepad", id.WindowTitle)
	require.NotNil(t, id.ProcessID)
	assert.Equal(t, uint32(5), *id.ProcessID)
	assert.Equal(t, []string{"Window 'Untitled - Notepad'", "Pane#main"}, id.AncestorPath)

	assert.Nil(t, d.InspectAt(1000, 1000))
}
