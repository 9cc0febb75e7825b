package playback

import (
	"strings"

	"clickreplay/internal/core"
)

// TextPart is either a run of literal text or a single Enter press.
type TextPart struct {
	Text  string
	Enter bool
}

// SplitText breaks text at every Enter token. Empty runs are dropped.
func SplitText(text string) []TextPart {
	var parts []TextPart
	for i, seg := range strings.Split(text, core.EnterToken) {
		if i > 0 {
			parts = append(parts, TextPart{Enter: true})
		}
		if seg != "" {
			parts = append(parts, TextPart{Text: seg})
		}
	}
	return parts
}
