package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/primitive"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("g%d", n)
	}
}

func box(t *testing.T) *kernel.Mesh {
	t.Helper()
	m, err := primitive.Box(1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestPutGet(t *testing.T) {
	c := New(0, 0)
	m := box(t)
	id, err := c.Put(m)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Put() id = %q, not a UUID: %v", id, err)
	}
	got, ok := c.Get(id)
	if !ok || got != m {
		t.Fatalf("Get(%q) = %v, %v; want stored mesh", id, got, ok)
	}
	if _, ok := c.Get("nope"); ok {
		t.Error("Get(unknown) ok = true")
	}
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 || s.Bytes != EstimateSize(m) {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestResolve(t *testing.T) {
	c := New(0, 0)
	id, _ := c.Put(box(t))
	if _, err := c.Resolve(id); err != nil {
		t.Errorf("Resolve(%q) error = %v", id, err)
	}
	if _, err := c.Resolve("missing"); !errors.Is(err, kernel.ErrInvalidInput) {
		t.Errorf("Resolve(missing) error = %v, want invalid input", err)
	}
}

func TestLRUEviction(t *testing.T) {
	m := box(t)
	size := EstimateSize(m)
	c := New(3*size, 0, WithIDGenerator(counterIDs()))

	for i := 0; i < 3; i++ {
		if _, err := c.Put(m); err != nil {
			t.Fatal(err)
		}
	}
	// Touch g1 so g2 becomes least recently used.
	if _, ok := c.Get("g1"); !ok {
		t.Fatal("g1 missing before eviction")
	}
	if _, err := c.Put(m); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"g1", true},
		{"g2", false},
		{"g3", true},
		{"g4", true},
	}
	for _, tt := range tests {
		if _, ok := c.Get(tt.id); ok != tt.want {
			t.Errorf("Get(%s) ok = %v, want %v", tt.id, ok, tt.want)
		}
	}
	if s := c.Stats(); s.Evictions != 1 || s.Bytes > s.MaxBytes {
		t.Errorf("Stats() = %+v, want 1 eviction within ceiling", s)
	}
}

func TestPutTooLarge(t *testing.T) {
	m := box(t)
	c := New(EstimateSize(m)-1, 0)
	if _, err := c.Put(m); !errors.Is(err, kernel.ErrResourceExhausted) {
		t.Errorf("Put() error = %v, want resource exhausted", err)
	}
	if _, err := c.Put(nil); !errors.Is(err, kernel.ErrInvalidInput) {
		t.Errorf("Put(nil) error = %v, want invalid input", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := New(0, time.Minute, WithClock(clock.now), WithIDGenerator(counterIDs()))
	m := box(t)
	c.Put(m) // g1
	clock.advance(40 * time.Second)
	c.Put(m) // g2
	clock.advance(30 * time.Second)

	// g1 has been idle 70s, g2 30s.
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, ok := c.Get("g1"); ok {
		t.Error("g1 survived the sweep")
	}
	if _, ok := c.Get("g2"); !ok {
		t.Error("g2 was swept early")
	}

	// The read above refreshed g2; idling past the TTL expires it lazily.
	clock.advance(61 * time.Second)
	if _, ok := c.Get("g2"); ok {
		t.Error("Get(g2) after TTL ok = true")
	}
	if s := c.Stats(); s.Expirations != 2 || s.Entries != 0 {
		t.Errorf("Stats() = %+v, want 2 expirations and no entries", s)
	}
}

func TestRemoveAndClear(t *testing.T) {
	c := New(0, 0, WithIDGenerator(counterIDs()))
	m := box(t)
	c.Put(m)
	c.Put(m)
	if !c.Remove("g1") {
		t.Error("Remove(g1) = false")
	}
	if c.Remove("g1") {
		t.Error("second Remove(g1) = true")
	}
	if n := c.Clear(); n != 1 {
		t.Errorf("Clear() = %d, want 1", n)
	}
	if s := c.Stats(); s.Entries != 0 || s.Bytes != 0 {
		t.Errorf("Stats() after Clear = %+v", s)
	}
}

func TestEntriesOrder(t *testing.T) {
	c := New(0, 0, WithIDGenerator(counterIDs()))
	m := box(t)
	c.Put(m)
	c.Put(m)
	c.Get("g1")
	got := c.Entries()
	if len(got) != 2 || got[0].ID != "g1" || got[1].ID != "g2" {
		t.Errorf("Entries() order = %v", []string{got[0].ID, got[1].ID})
	}
}

func TestRunStopsWithContext(t *testing.T) {
	c := New(0, time.Nanosecond)
	c.Put(box(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for c.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never expired the entry")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := box(t)
	c := New(8*EstimateSize(m), time.Hour)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id, err := c.Put(m)
				if err != nil {
					t.Error(err)
					return
				}
				c.Get(id)
				if i%10 == 0 {
					c.Sweep()
				}
			}
		}()
	}
	wg.Wait()
	if s := c.Stats(); s.Bytes > s.MaxBytes || s.Entries > 8 {
		t.Errorf("Stats() = %+v, ceiling exceeded", s)
	}
}
