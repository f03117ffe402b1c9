package effects

import (
	"sync"
	"time"

	"nudge/internal/runtime/clock"
)

// DefaultLiveTTL is how long an announcement stays in the live region.
const DefaultLiveTTL = time.Second

// LiveRegion is an off-screen list of announcements for screen readers. Each
// entry removes itself after the TTL.
type LiveRegion struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	seq     uint64
	entries []liveEntry
	// OnChange, when set, receives the current text after every change.
	onChange func([]string)
}

type liveEntry struct {
	id   uint64
	text string
}

func NewLiveRegion(c clock.Clock, ttl time.Duration, onChange func([]string)) *LiveRegion {
	if c == nil {
		c = clock.Real()
	}
	if ttl <= 0 {
		ttl = DefaultLiveTTL
	}
	return &LiveRegion{clock: c, ttl: ttl, onChange: onChange}
}

func (l *LiveRegion) Announce(text string) {
	l.mu.Lock()
	l.seq++
	id := l.seq
	l.entries = append(l.entries, liveEntry{id: id, text: text})
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)

	l.clock.AfterFunc(l.ttl, func() { l.remove(id) })
}

func (l *LiveRegion) remove(id uint64) {
	l.mu.Lock()
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)
}

// Current returns the announcements still in the region, oldest first.
func (l *LiveRegion) Current() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *LiveRegion) snapshotLocked() []string {
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.text)
	}
	return out
}

func (l *LiveRegion) notify(snap []string) {
	if l.onChange != nil {
		l.onChange(snap)
	}
}
