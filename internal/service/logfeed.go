package service

import (
	"sync"

	"clickreplay/internal/core"
)

const defaultLogFeedSize = 500

// LogFeed keeps the most recent scheduler log lines and fans new ones out to followers.
type LogFeed struct {
	mu        sync.Mutex
	lines     []string
	max       int
	followers map[chan string]struct{}
}

func NewLogFeed(max int) *LogFeed {
	if max <= 0 {
		max = defaultLogFeedSize
	}
	return &LogFeed{max: max, followers: make(map[chan string]struct{})}
}

func (f *LogFeed) SchedulerLog(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	if over := len(f.lines) - f.max; over > 0 {
		f.lines = append(f.lines[:0:0], f.lines[over:]...)
	}
	for ch := range f.followers {
		select {
		case ch <- line:
		default:
			// slow follower; it will miss this line
		}
	}
}

func (f *LogFeed) JobFinished(core.JobEvent) {}

// Tail returns up to n of the latest lines; n <= 0 returns all of them.
func (f *LogFeed) Tail(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := 0
	if n > 0 && len(f.lines) > n {
		start = len(f.lines) - n
	}
	return append([]string(nil), f.lines[start:]...)
}

// Follow returns a channel of new lines and a function that closes it.
func (f *LogFeed) Follow() (<-chan string, func()) {
	ch := make(chan string, 64)
	f.mu.Lock()
	f.followers[ch] = struct{}{}
	f.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.followers, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}
