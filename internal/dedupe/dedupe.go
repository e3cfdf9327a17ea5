// ABOUTME: TTL tracker for webhook delivery IDs to absorb transport retries.
// ABOUTME: A delivery seen within the window is acknowledged without reprocessing.

// Package dedupe tracks recently processed webhook delivery identifiers.
// Chat platforms redeliver updates when a webhook response is slow or lost,
// and users double-send; processing the same delivery twice would re-run a
// turn and could emit a duplicate job record. The tracker remembers delivery
// IDs for a TTL window so duplicates inside the window are dropped. A
// duplicate that outlives the window is accepted as a new delivery; the
// design does not promise at-most-once persistence beyond the window.
package dedupe

import (
	"sync"
	"time"
)

type queueEntry struct {
	id    string
	stamp time.Time
}

// Tracker is a thread-safe, size-bounded set of recently seen delivery IDs.
// Expired and evicted entries are cleaned lazily on each call, so there is
// no background goroutine to manage.
type Tracker struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	queue   []queueEntry // append order; entries with stale stamps are skipped
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewTracker creates a tracker that remembers IDs for ttl and holds at most
// maxSize live entries, evicting the oldest beyond that.
func NewTracker(ttl time.Duration, maxSize int) *Tracker {
	return &Tracker{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen atomically checks whether id was processed within the TTL window and
// records it if not. Returns true for a duplicate that must be dropped,
// false for a fresh delivery that is now marked.
func (t *Tracker) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if stamp, ok := t.seen[id]; ok && now.Sub(stamp) < t.ttl {
		return true
	}

	t.seen[id] = now
	t.queue = append(t.queue, queueEntry{id: id, stamp: now})
	t.compactLocked(now)
	return false
}

// Len reports the number of live entries. Exposed for metrics.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// compactLocked drops expired entries and enforces maxSize from the front of
// the queue. A queue entry whose stamp no longer matches the map is a stale
// leftover from a refresh and is skipped. Amortized O(1) per Seen call.
// Must be called with mu held.
func (t *Tracker) compactLocked(now time.Time) {
	for len(t.queue) > 0 {
		front := t.queue[0]
		current, ok := t.seen[front.id]
		if ok && current.Equal(front.stamp) {
			expired := now.Sub(current) >= t.ttl
			if !expired && len(t.seen) <= t.maxSize {
				break
			}
			delete(t.seen, front.id)
		}
		t.queue = t.queue[1:]
	}
}
