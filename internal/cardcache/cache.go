// Package cardcache keeps the most recent card presentations seen by the
// reader and decides which one counts as "the card just presented".
package cardcache

import (
	"sync"
	"time"

	"laundry-locker/internal/clock"
	"laundry-locker/internal/model"
)

const (
	DefaultCapacity    = 10
	DefaultDedupWindow = 2 * time.Second
	DefaultValidity    = 30 * time.Second
)

// Options configures a Cache. Zero values fall back to the defaults.
type Options struct {
	Capacity    int
	DedupWindow time.Duration
	Validity    time.Duration
	Clock       clock.Clock
}

// Cache is a bounded buffer of recent card reads, oldest first. Every method
// runs under the same mutex.
type Cache struct {
	mu          sync.Mutex
	entries     []model.CardRead
	capacity    int
	dedupWindow time.Duration
	validity    time.Duration
	clock       clock.Clock
}

// New creates a Cache.
func New(opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.Validity <= 0 {
		opts.Validity = DefaultValidity
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Cache{
		entries:     make([]model.CardRead, 0, opts.Capacity+1),
		capacity:    opts.Capacity,
		dedupWindow: opts.DedupWindow,
		validity:    opts.Validity,
		clock:       opts.Clock,
	}
}

// Record registers a presentation of cardID. A read of the same card within
// the dedup window refreshes that entry and bumps its read count; anything
// else appends a new entry, evicting the oldest beyond capacity. It returns
// the entry as stored.
func (c *Cache) Record(cardID string) model.CardRead {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := &c.entries[i]
		if e.CardID != cardID {
			continue
		}
		if now.Sub(e.Timestamp) < c.dedupWindow {
			e.Timestamp = now
			e.ReadCount++
			return *e
		}
		break
	}

	entry := model.CardRead{CardID: cardID, Timestamp: now, ReadCount: 1}
	c.entries = append(c.entries, entry)
	if over := len(c.entries) - c.capacity; over > 0 {
		c.entries = append(c.entries[:0], c.entries[over:]...)
	}
	return entry
}

// LastCard returns the card most likely being presented right now: the
// newest entry read more than once inside the validity window, otherwise the
// newest entry if it is still inside the window.
func (c *Cache) LastCard() (model.CardRead, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		return model.CardRead{}, false
	}

	now := c.clock.Now()
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if e.ReadCount > 1 && now.Sub(e.Timestamp) <= c.validity {
			return e, true
		}
	}

	newest := c.entries[len(c.entries)-1]
	if now.Sub(newest.Timestamp) <= c.validity {
		return newest, true
	}
	return model.CardRead{}, false
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
}

// Len returns the number of buffered entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of the buffer, oldest first.
func (c *Cache) Snapshot() []model.CardRead {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.CardRead, len(c.entries))
	copy(out, c.entries)
	return out
}
