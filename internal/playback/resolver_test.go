package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickreplay/internal/core"
	"clickreplay/internal/uitree"
)

func TestFindPrefersAutomationID(t *testing.T) {
	d := uitree.NewMemDesktop()
	w := d.AddWindow(1, "app", uitree.Properties{Name: "Main"})
	byName := w.Add(uitree.Properties{Name: "Save", ControlType: "Button"})
	byID := w.Add(uitree.Properties{AutomationID: "saveBtn", Name: "Store", ControlType: "Button"})

	r := NewResolver(d, time.Second, 10*time.Millisecond, discardLogger())
	el, ok := r.Find(&core.ElementIdentity{AutomationID: "saveBtn", Name: "Save", ControlType: "Button"}, nil)
	require.True(t, ok)
	assert.Same(t, byID, el)
	assert.NotSame(t, byName, el)
}

func TestFindStrategyFallthrough(t *testing.T) {
	d := uitree.NewMemDesktop()
	w := d.AddWindow(1, "app", uitree.Properties{})
	w.Add(uitree.Properties{Name: "OK", ControlType: "Text"})
	edit := w.Add(uitree.Properties{ClassName: "Edit"})

	r := NewResolver(d, time.Second, 10*time.Millisecond, discardLogger())

	// Name matches but the control type does not, so the class strategy wins.
	el, ok := r.Find(&core.ElementIdentity{Name: "OK", ControlType: "Button", ClassName: "Edit"}, nil)
	require.True(t, ok)
	assert.Same(t, edit, el)

	_, ok = r.Find(&core.ElementIdentity{AutomationID: "nope"}, nil)
	assert.False(t, ok)

	_, ok = r.Find(&core.ElementIdentity{ControlType: "Button"}, nil)
	assert.False(t, ok, "identity without searchable fields never matches")
}

func TestFindProcessScope(t *testing.T) {
	d := uitree.NewMemDesktop()
	foreign := d.AddWindow(1, "other", uitree.Properties{Name: "Other"})
	foreignOK := foreign.Add(uitree.Properties{Name: "OK", ControlType: "Button"})
	d.AddWindow(2, "target", uitree.Properties{Name: "Target"})

	r := NewResolver(d, time.Second, 10*time.Millisecond, discardLogger())
	id := &core.ElementIdentity{Name: "OK", ControlType: "Button", ProcessName: "target"}

	_, ok := r.Find(id, u32(2))
	assert.False(t, ok, "scoped search must not fall back to the desktop")

	el, ok := r.Find(id, nil)
	require.True(t, ok)
	assert.Same(t, foreignOK, el, "unscoped search falls back to the desktop")

	targetWin, err := d.TopLevelWindows(2)
	require.NoError(t, err)
	mine := targetWin[0].(*uitree.MemElement).Add(uitree.Properties{Name: "OK", ControlType: "Button"})

	el, ok = r.Find(id, u32(2))
	require.True(t, ok)
	assert.Same(t, mine, el)
}

func TestFindSearchesNamedProcessFirst(t *testing.T) {
	d := uitree.NewMemDesktop()
	first := d.AddWindow(1, "other", uitree.Properties{})
	first.Add(uitree.Properties{AutomationID: "go"})
	second := d.AddWindow(2, "target", uitree.Properties{})
	want := second.Add(uitree.Properties{AutomationID: "go"})

	r := NewResolver(d, time.Second, 10*time.Millisecond, discardLogger())
	el, ok := r.Find(&core.ElementIdentity{AutomationID: "go", ProcessName: "target"}, nil)
	require.True(t, ok)
	assert.Same(t, want, el)
}

func TestWaitForPollsUntilElementAppears(t *testing.T) {
	d := uitree.NewMemDesktop()
	r := NewResolver(d, 2*time.Second, 10*time.Millisecond, discardLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		w := d.AddWindow(3, "late", uitree.Properties{})
		w.Add(uitree.Properties{AutomationID: "late"})
	}()

	el, err := r.WaitFor(context.Background(), &core.ElementIdentity{AutomationID: "late"}, nil)
	require.NoError(t, err)
	require.NotNil(t, el)
}

func TestWaitForTimesOut(t *testing.T) {
	d := uitree.NewMemDesktop()
	r := NewResolver(d, 60*time.Millisecond, 10*time.Millisecond, discardLogger())

	start := time.Now()
	_, err := r.WaitFor(context.Background(), &core.ElementIdentity{AutomationID: "x", WindowTitle: "Main"}, u32(9))
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.ErrorIs(t, err, ErrElementNotFound)

	var nf *ElementNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, nf.Error(), "[AutomationId='x']")
	assert.Contains(t, nf.Error(), "scoped to process 9")
}

func TestWaitForCancelled(t *testing.T) {
	d := uitree.NewMemDesktop()
	r := NewResolver(d, 5*time.Second, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	_, err := r.WaitFor(ctx, &core.ElementIdentity{AutomationID: "x"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
