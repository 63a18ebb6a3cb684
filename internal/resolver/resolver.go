// Package resolver caches conversation participant sets for fan-out. Lookups
// are served from an in-memory snapshot; misses fall through to storage with
// concurrent misses for the same conversation collapsed into one query.
package resolver

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Austin-rgb/messages/pkg/metrics"
)

// ParticipantSource loads the authoritative participant list for a
// conversation. *store.Store satisfies it.
type ParticipantSource interface {
	Participants(ctx context.Context, conversation string) ([]string, error)
}

// Resolver is a read-through participant cache. Entries are replaced
// wholesale on load or invalidation; readers always see a complete set.
type Resolver struct {
	src ParticipantSource

	mu    sync.RWMutex
	cache map[string][]string
	// gen guards against a load that was already in flight when Invalidate
	// ran writing its pre-invalidation set back into the cache
	gen map[string]uint64

	group singleflight.Group
}

func New(src ParticipantSource) *Resolver {
	return &Resolver{
		src:   src,
		cache: make(map[string][]string),
		gen:   make(map[string]uint64),
	}
}

// Participants returns the participant set for a conversation. A cache miss
// loads from storage; concurrent misses share a single load. A load that
// races an Invalidate still returns its result to callers, but does not
// populate the cache: the next lookup reloads.
func (r *Resolver) Participants(ctx context.Context, conversation string) ([]string, error) {
	r.mu.RLock()
	cached, ok := r.cache[conversation]
	r.mu.RUnlock()
	if ok {
		metrics.ResolverLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.ResolverLookups.WithLabelValues("miss").Inc()

	v, err, _ := r.group.Do(conversation, func() (any, error) {
		r.mu.RLock()
		gen := r.gen[conversation]
		r.mu.RUnlock()

		users, err := r.src.Participants(ctx, conversation)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.gen[conversation] == gen {
			r.cache[conversation] = users
		}
		r.mu.Unlock()
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Invalidate drops the cached set for a conversation and marks any load in
// flight as stale. The next lookup reloads from storage. Call after
// membership changes.
func (r *Resolver) Invalidate(conversation string) {
	r.mu.Lock()
	delete(r.cache, conversation)
	r.gen[conversation]++
	r.mu.Unlock()
	// new callers must not join a load that started before the invalidation
	r.group.Forget(conversation)
}
