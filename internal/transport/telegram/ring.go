package telegram

import (
	"sync"
	"time"
)

// seenEntry is one score-looking message kept for rescan.
type seenEntry struct {
	UserID string
	Name   string
	At     time.Time
	Score  int
}

// seenRing holds the most recent matched messages. Telegram bots cannot
// fetch chat history, so rescan replays from this buffer instead.
type seenRing struct {
	mu   sync.Mutex
	buf  []seenEntry
	next int
	full bool
}

func newSeenRing(capacity int) *seenRing {
	if capacity <= 0 {
		capacity = 50
	}
	return &seenRing{buf: make([]seenEntry, capacity)}
}

func (r *seenRing) Push(e seenEntry) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Last returns up to n entries, oldest first.
func (r *seenRing) Last(n int) []seenEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]seenEntry, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
