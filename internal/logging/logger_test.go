package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterFormats(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "json").Info("job finished", "job_id", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "job finished", rec["msg"])
	assert.Equal(t, "abc", rec["job_id"])

	buf.Reset()
	NewWithWriter(&buf, "warn", "text").Info("hidden")
	assert.Empty(t, buf.String())

	NewWithWriter(&buf, "debug", "").Debug("shown", "k", 1)
	assert.Contains(t, buf.String(), "msg=shown")
}
