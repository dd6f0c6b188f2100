package dedupe

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the seen-signature retention used when no TTL is given.
const DefaultTTL = 24 * time.Hour

// janitorInterval is how often expired entries are swept out of memory.
// Expiry itself is lazy, so the sweep only bounds memory growth.
const janitorInterval = time.Minute

// MemoryDeduper is an in-process Deduper backed by a TTL map.
type MemoryDeduper struct {
	mu   sync.RWMutex
	seen map[string]int64 // key -> expiry, Unix ms
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// NewMemoryDeduper creates a deduper with the given TTL and starts its
// janitor goroutine. Close stops the janitor.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	d := &MemoryDeduper{
		seen: make(map[string]int64),
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	go d.janitor()
	return d
}

// IsDuplicate reports whether the key was marked seen and has not expired.
func (d *MemoryDeduper) IsDuplicate(ctx context.Context, key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	expiry, ok := d.seen[key]
	return ok && expiry > time.Now().UnixMilli(), nil
}

// MarkSeen records the key for the TTL window.
func (d *MemoryDeduper) MarkSeen(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen[key] = time.Now().Add(d.ttl).UnixMilli()
	return nil
}

// Close stops the janitor goroutine.
func (d *MemoryDeduper) Close() error {
	d.once.Do(func() { close(d.stop) })
	return nil
}

func (d *MemoryDeduper) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.sweep(time.Now().UnixMilli())
		}
	}
}

func (d *MemoryDeduper) sweep(nowMs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, expiry := range d.seen {
		if expiry <= nowMs {
			delete(d.seen, key)
		}
	}
}

var _ Deduper = (*MemoryDeduper)(nil)
