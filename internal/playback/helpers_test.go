package playback

import (
	"io"
	"log/slog"
	"time"

	"clickreplay/internal/input"
	"clickreplay/internal/uitree"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(desktop uitree.Desktop, journal *input.Journal) *Executor {
	resolver := NewResolver(desktop, 100*time.Millisecond, 10*time.Millisecond, discardLogger())
	return NewExecutor(desktop, resolver, journal, discardLogger(), func(time.Duration) {})
}

func u32(v uint32) *uint32 { return &v }

func eventStrings(j *input.Journal) []string {
	var out []string
	for _, e := range j.Events() {
		out = append(out, e.String())
	}
	return out
}
