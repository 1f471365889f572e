package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
)

// SlotCache holds a TTL'd snapshot of the device channel table so that list
// requests do not pay a device round trip. The channel table only changes
// through this process or through physical access to the device, so a long
// TTL is safe; writes invalidate and reseed it immediately.
type SlotCache struct {
	ttl time.Duration
	log *logging.Logger
	now func() time.Time

	// refreshMu serialises cache refreshes so a cold cache costs one
	// device scan no matter how many readers miss at once. It is held
	// across the device round trip; mu is not.
	refreshMu sync.Mutex

	mu          sync.Mutex
	snapshot    []ChannelSlot
	populatedAt time.Time
	warm        bool
}

// NewSlotCache creates a channel-slot cache with the given TTL.
func NewSlotCache(ttl time.Duration, log *logging.Logger) *SlotCache {
	return &SlotCache{
		ttl: ttl,
		log: log.With("component", "slot_cache"),
		now: time.Now,
	}
}

// Read returns the cached snapshot if it is populated and within TTL.
func (c *SlotCache) Read() ([]ChannelSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.warm || c.now().Sub(c.populatedAt) >= c.ttl {
		return nil, false
	}
	return cloneSlots(c.snapshot), true
}

// Invalidate discards the snapshot. Called before any channel write so a
// failed write cannot leave stale data behind.
func (c *SlotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.warm = false
}

// Set replaces the snapshot and restarts the TTL. Used by write paths that
// already hold a fresh scan, so the next read is warm without another
// device round trip.
func (c *SlotCache) Set(slots []ChannelSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = cloneSlots(slots)
	c.populatedAt = c.now()
	c.warm = true
}

// Refresh returns the snapshot, fetching from the device via fetch on a
// miss. Concurrent callers are collapsed onto one fetch: the second caller
// blocks on refreshMu, then finds the cache warm on the double-check.
func (c *SlotCache) Refresh(ctx context.Context, fetch func(ctx context.Context) ([]ChannelSlot, error)) ([]ChannelSlot, error) {
	if slots, ok := c.Read(); ok {
		return slots, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if slots, ok := c.Read(); ok {
		return slots, nil
	}

	slots, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(slots)
	c.log.Debug("channel cache refreshed", "slots", len(slots))
	return cloneSlots(slots), nil
}

// State reports whether the cache is warm and, if so, the snapshot age.
func (c *SlotCache) State() (warm bool, age time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.warm {
		return false, 0
	}
	age = c.now().Sub(c.populatedAt)
	if age >= c.ttl {
		return false, 0
	}
	return true, age
}

func cloneSlots(slots []ChannelSlot) []ChannelSlot {
	out := make([]ChannelSlot, len(slots))
	copy(out, slots)
	return out
}
