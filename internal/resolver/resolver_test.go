package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

type countingSource struct {
	mu    sync.Mutex
	sets  map[string][]string
	loads int64
}

func (c *countingSource) Participants(_ context.Context, conversation string) ([]string, error) {
	atomic.AddInt64(&c.loads, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets[conversation], nil
}

func TestReadThrough(t *testing.T) {
	src := &countingSource{sets: map[string][]string{"team": {"alice", "bob"}}}
	r := New(src)
	ctx := context.Background()

	got, err := r.Participants(ctx, "team")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("participants = %v", got)
	}

	// second lookup served from cache
	r.Participants(ctx, "team")
	if n := atomic.LoadInt64(&src.loads); n != 1 {
		t.Fatalf("source loads = %d, want 1", n)
	}
}

func TestInvalidateReloads(t *testing.T) {
	src := &countingSource{sets: map[string][]string{"team": {"alice"}}}
	r := New(src)
	ctx := context.Background()

	r.Participants(ctx, "team")

	src.mu.Lock()
	src.sets["team"] = []string{"alice", "bob"}
	src.mu.Unlock()
	r.Invalidate("team")

	got, err := r.Participants(ctx, "team")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("stale set after invalidate: %v", got)
	}
	if n := atomic.LoadInt64(&src.loads); n != 2 {
		t.Fatalf("source loads = %d, want 2", n)
	}
}

// gatedSource blocks each load until the test releases it, so a load can be
// held open across an Invalidate.
type gatedSource struct {
	mu      sync.Mutex
	sets    map[string][]string
	started chan struct{}
	release chan struct{}
	loads   int64
}

func (g *gatedSource) Participants(_ context.Context, conversation string) ([]string, error) {
	atomic.AddInt64(&g.loads, 1)
	g.started <- struct{}{}
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sets[conversation], nil
}

func TestInvalidateDuringInFlightLoad(t *testing.T) {
	src := &gatedSource{
		sets:    map[string][]string{"c1": {"a"}},
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	r := New(src)
	ctx := context.Background()

	// a miss-load of the old set is held open...
	firstDone := make(chan []string, 1)
	go func() {
		got, _ := r.Participants(ctx, "c1")
		firstDone <- got
	}()
	<-src.started

	// ...while the membership changes and the change is announced
	src.mu.Lock()
	src.sets["c1"] = []string{"a", "b"}
	src.mu.Unlock()
	r.Invalidate("c1")

	// the stale load completes after the invalidation
	close(src.release)
	if got := <-firstDone; len(got) != 1 {
		t.Fatalf("in-flight caller got %v, want the set its load observed", got)
	}

	// the completed stale load must not have repopulated the cache: the
	// next lookup reloads and sees the new membership
	got, err := r.Participants(ctx, "c1")
	if err != nil {
		t.Fatalf("lookup after invalidate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("resolver serves stale set %v after completed Invalidate", got)
	}
	if n := atomic.LoadInt64(&src.loads); n != 2 {
		t.Fatalf("source loads = %d, want 2", n)
	}
}

func TestConcurrentMissesCollapse(t *testing.T) {
	src := &countingSource{sets: map[string][]string{"team": {"alice"}}}
	r := New(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Participants(ctx, "team"); err != nil {
				t.Errorf("lookup: %v", err)
			}
		}()
	}
	wg.Wait()

	// singleflight may admit a second load under heavy interleaving but
	// must not fan out one per caller
	if n := atomic.LoadInt64(&src.loads); n > 2 {
		t.Fatalf("source loads = %d, want collapsed lookups", n)
	}
}
