// Package cache keeps meshes addressable by opaque geometry IDs.
//
// Entries are evicted least-recently-used first when the total estimated
// size exceeds the ceiling, and expire once they have been idle longer than
// the TTL. Expired entries are dropped lazily on access and in bulk by
// Sweep, which Run calls on a ticker.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/logging"
)

const (
	DefaultMaxBytes = 512 << 20
	DefaultTTL      = 30 * time.Minute

	// entryOverhead approximates the fixed cost of an entry beyond its
	// buffers.
	entryOverhead = 256
)

// Entry describes a cached mesh.
type Entry struct {
	ID           string
	Mesh         *kernel.Mesh
	CreatedAt    time.Time
	LastAccessed time.Time
	Size         int64
}

// Stats is a point-in-time summary of the cache.
type Stats struct {
	Entries     int    `json:"entries"`
	Bytes       int64  `json:"bytes"`
	MaxBytes    int64  `json:"maxBytes"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// Cache is an LRU+TTL mesh store. It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	bytes    int64
	maxBytes int64
	ttl      time.Duration
	stats    Stats

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for eviction and expiry events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = logging.OrNop(l) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(f func() string) Option {
	return func(c *Cache) { c.newID = f }
}

// New returns a cache holding at most maxBytes of estimated mesh data,
// expiring entries idle for longer than ttl. maxBytes <= 0 disables the
// ceiling and ttl <= 0 disables expiry.
func New(maxBytes int64, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logging.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EstimateSize returns the number of bytes a mesh is charged against the
// ceiling.
func EstimateSize(m *kernel.Mesh) int64 {
	if m == nil {
		return entryOverhead
	}
	return int64(len(m.Vertices)*8+len(m.Normals)*8+len(m.Faces)*4) + entryOverhead
}

// Put stores m under a fresh ID and returns the ID. The cache takes
// ownership of m; callers must not modify it afterwards. A mesh larger than
// the whole ceiling is rejected with a resource-exhausted error.
func (c *Cache) Put(m *kernel.Mesh) (string, error) {
	if m == nil {
		return "", kernel.Errorf(kernel.KindInvalidInput, "cache put", "nil mesh")
	}
	size := EstimateSize(m)
	if c.maxBytes > 0 && size > c.maxBytes {
		return "", kernel.Errorf(kernel.KindResourceExhausted, "cache put",
			"mesh of %d bytes exceeds cache ceiling of %d bytes", size, c.maxBytes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	id := c.newID()
	if el, ok := c.items[id]; ok {
		c.removeElement(el)
	}
	e := &Entry{ID: id, Mesh: m, CreatedAt: now, LastAccessed: now, Size: size}
	c.items[id] = c.order.PushFront(e)
	c.bytes += size
	c.evict()
	return id, nil
}

// evict drops least recently used entries until the ceiling holds.
// Callers hold c.mu.
func (c *Cache) evict() {
	if c.maxBytes <= 0 {
		return
	}
	for c.bytes > c.maxBytes {
		el := c.order.Back()
		if el == nil {
			return
		}
		e := c.removeElement(el)
		c.stats.Evictions++
		c.logger.Debug("cache evict", "id", e.ID, "bytes", e.Size)
	}
}

func (c *Cache) removeElement(el *list.Element) *Entry {
	e := c.order.Remove(el).(*Entry)
	delete(c.items, e.ID)
	c.bytes -= e.Size
	return e
}

func (c *Cache) expired(e *Entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.LastAccessed) > c.ttl
}

// Get returns the mesh stored under id and marks it recently used.
func (c *Cache) Get(id string) (*kernel.Mesh, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	e := el.Value.(*Entry)
	now := c.now()
	if c.expired(e, now) {
		c.removeElement(el)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}
	e.LastAccessed = now
	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.Mesh, true
}

// Resolve is Get with an invalid-input error for unknown or expired IDs.
func (c *Cache) Resolve(id string) (*kernel.Mesh, error) {
	m, ok := c.Get(id)
	if !ok {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "resolve", "geometry %q not found", id)
	}
	return m, nil
}

// Remove deletes id and reports whether it was present.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if ok {
		c.removeElement(el)
	}
	return ok
}

// Clear deletes every entry and returns how many there were.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.bytes = 0
	return n
}

// Sweep removes every expired entry and returns how many it removed.
func (c *Cache) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	// Idle time grows toward the back of the list.
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*Entry), now) {
			c.removeElement(el)
			n++
		}
		el = prev
	}
	c.stats.Expirations += uint64(n)
	return n
}

// Run sweeps every interval until ctx is done. It returns ctx.Err().
func (c *Cache) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Info("cache sweep", "expired", n, "remaining", c.Len())
			}
		}
	}
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.items)
	s.Bytes = c.bytes
	s.MaxBytes = c.maxBytes
	return s
}

// Entries returns copies of the entry metadata, most recently used first.
// The Mesh fields are shared with the cache and must not be modified.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*Entry))
	}
	return out
}
