package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a process-wide read-through cache with a TTL and an optional
// entry cap. Concurrent loads of the same key share one loader call.
type Store[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	flight     singleflight.Group
	now        func() time.Time
}

// NewStore builds a store. ttl <= 0 keeps entries forever; maxEntries <= 0
// disables the cap.
func NewStore[V any](ttl time.Duration, maxEntries int) *Store[V] {
	return &Store[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *Store[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if s.ttl > 0 && !e.expiresAt.After(s.now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

func (s *Store[V]) Set(_ context.Context, key string, value V) {
	if key == "" {
		return
	}

	now := s.now()
	expiresAt := time.Time{}
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictExpired(now)
		if len(s.entries) >= s.maxEntries {
			s.evictOne()
		}
	}
	s.entries[key] = entry[V]{
		value:     value,
		expiresAt: expiresAt,
	}
}

// GetOrLoad returns the cached value or runs loader once per key across
// concurrent callers. Loader errors are returned and never cached.
//
// The loader runs on a context detached from caller cancellation, so it must
// bound itself. Each caller stops waiting when its own ctx is done.
func (s *Store[V]) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (V, error)) (V, error) {
	var zero V
	if loader == nil {
		return zero, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	results := s.flight.DoChan(key, func() (any, error) {
		if cached, ok := s.Get(loadCtx, key); ok {
			return cached, nil
		}

		loaded, loadErr := loader(loadCtx)
		if loadErr != nil {
			return nil, loadErr
		}
		s.Set(loadCtx, key, loaded)
		return loaded, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-results:
	}
	if res.Err != nil {
		return zero, res.Err
	}

	value, ok := res.Val.(V)
	if !ok {
		return zero, fmt.Errorf("unexpected cached value type %T", res.Val)
	}
	return value, nil
}

func (s *Store[V]) evictExpired(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}

func (s *Store[V]) evictOne() {
	for key := range s.entries {
		delete(s.entries, key)
		return
	}
}
