package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordsEvents(t *testing.T) {
	j := NewJournal(nil)
	require.NoError(t, j.MoveTo(10, 20))
	require.NoError(t, j.ButtonDown(Left))
	require.NoError(t, j.ButtonUp(Left))
	require.NoError(t, j.TypeText("abc"))
	require.NoError(t, j.KeyPress(KeyEnter))

	events := j.Events()
	require.Len(t, events, 5)
	assert.Equal(t, "move(10,20)", events[0].String())
	assert.Equal(t, "down(left)", events[1].String())
	assert.Equal(t, "up(left)", events[2].String())
	assert.Equal(t, `text("abc")`, events[3].String())
	assert.Equal(t, "key(enter)", events[4].String())

	j.Reset()
	assert.Empty(t, j.Events())
}

func TestJournalErr(t *testing.T) {
	j := NewJournal(nil)
	j.Err = errors.New("access denied")
	assert.EqualError(t, j.MoveTo(1, 1), "access denied")
	assert.Empty(t, j.Events())
}
