package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementIdentitySelector(t *testing.T) {
	var nilID *ElementIdentity
	assert.Equal(t, "(unknown element)", nilID.Selector())
	assert.False(t, nilID.Usable())

	id := &ElementIdentity{AutomationID: "btnOK", Name: "OK", ControlType: "Button"}
	assert.Equal(t, "[AutomationId='btnOK']", id.Selector())

	id.AutomationID = ""
	assert.Equal(t, "[Name='OK' Type=Button]", id.Selector())

	id = &ElementIdentity{ClassName: "Edit"}
	assert.Equal(t, "[Class='Edit']", id.Selector())
	assert.True(t, id.Usable())

	id = &ElementIdentity{ControlType: "Pane", ProcessName: "notepad"}
	assert.False(t, id.Usable())
	assert.Equal(t, "Pane (unknown element) in 'notepad'", id.String())
}

func TestUseElementPlayback(t *testing.T) {
	a := Action{Element: &ElementIdentity{Name: "OK"}}
	assert.True(t, a.UseElementPlayback())

	a.ForceCoordinates = true
	assert.False(t, a.UseElementPlayback())

	assert.False(t, Action{}.UseElementPlayback())
}

func TestTrimAncestors(t *testing.T) {
	path := make([]string, 12)
	for i := range path {
		path[i] = fmt.Sprintf("p%d", i)
	}
	trimmed := TrimAncestors(path)
	require.Len(t, trimmed, MaxAncestorDepth)
	assert.Equal(t, "p4", trimmed[0])
	assert.Equal(t, "p11", trimmed[MaxAncestorDepth-1])
}

type sourcedError struct{ msg string }

func (e *sourcedError) Error() string  { return e.msg }
func (e *sourcedError) Source() string { return "uitree" }

func TestNewExceptionDetailChain(t *testing.T) {
	root := &sourcedError{msg: "element gone"}
	err := fmt.Errorf("click step 3: %w", root)

	d := NewExceptionDetail(err, "playback")
	require.NotNil(t, d)
	assert.Equal(t, 2, d.Depth())
	assert.Equal(t, "playback", d.Source)
	assert.Equal(t, "click step 3: element gone", d.Message)
	assert.NotEqual(t, noStackTrace, d.StackTrace)

	require.NotNil(t, d.Inner)
	assert.Equal(t, "*core.sourcedError", d.Inner.Type)
	assert.Equal(t, "sourcedError", d.Inner.ShortType())
	assert.Equal(t, "uitree", d.Inner.Source)
	assert.Equal(t, noStackTrace, d.Inner.StackTrace)

	full := d.FullDisplay()
	assert.Contains(t, full, "Inner error (depth 1)")
	assert.Contains(t, full, "element gone")

	assert.Nil(t, NewExceptionDetail(nil, "x"))
	assert.Equal(t, 1, NewExceptionDetail(errors.New("flat"), "x").Depth())
}

func TestSessionCounts(t *testing.T) {
	start := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)
	s := &TestSession{
		StartedAt: start,
		Steps: []StepResult{
			{Status: StepSuccess, Mode: ModeElement},
			{Status: StepSuccess, Mode: ModeCoordinates},
			{Status: StepFailed, Mode: ModeElement},
		},
	}
	assert.Equal(t, 2, s.SuccessCount())
	assert.Equal(t, 1, s.FailureCount())
	assert.Equal(t, 2, s.ElementSteps())
	assert.Equal(t, 1, s.CoordinateSteps())
	assert.Zero(t, s.TotalDuration())

	end := start.Add(1500 * time.Millisecond)
	s.FinishedAt = &end
	assert.Equal(t, "ok 2 / failed 1 in 1.5s", s.Summary())
}

func TestPlayOptionsNormalized(t *testing.T) {
	o := PlayOptions{RepeatCount: 0, SpeedMultiplier: -2}.Normalized()
	assert.Equal(t, 1, o.RepeatCount)
	assert.Equal(t, 1.0, o.SpeedMultiplier)

	o = PlayOptions{RepeatCount: 3, SpeedMultiplier: 2}.Normalized()
	assert.Equal(t, 3, o.RepeatCount)
	assert.Equal(t, 2.0, o.SpeedMultiplier)
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	assert.Len(t, id, 8)
	assert.Equal(t, strings.ToUpper(id), id)
	assert.NotEqual(t, id, NewSessionID())
	assert.Len(t, NewID(), 32)
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "abc↵def", DisplayText("abc{ENTER}def"))
}
