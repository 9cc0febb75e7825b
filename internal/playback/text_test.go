package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []TextPart
	}{
		{"plain", "hello", []TextPart{{Text: "hello"}}},
		{"empty", "", nil},
		{"middle", "abc{ENTER}def", []TextPart{{Text: "abc"}, {Enter: true}, {Text: "def"}}},
		{"trailing", "abc{ENTER}", []TextPart{{Text: "abc"}, {Enter: true}}},
		{"only", "{ENTER}", []TextPart{{Enter: true}}},
		{"doubled", "a{ENTER}{ENTER}b", []TextPart{{Text: "a"}, {Enter: true}, {Enter: true}, {Text: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitText(tt.in))
		})
	}
}
