package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Evictor bounds a Cache by recency of use. It only remembers keys; the cache
// stays the sole owner of values. Keys that are never touched (pinned records
// such as relay lists or deletions) are never evicted.
type Evictor[K comparable] struct {
	recent *lru.Cache[K, struct{}]
}

// NewEvictor tracks up to capacity keys and calls onEvict with the least
// recently touched key whenever that bound is exceeded. A capacity of zero or
// less disables eviction and returns nil; every method is safe on a nil
// Evictor.
func NewEvictor[K comparable](capacity int, onEvict func(K)) (*Evictor[K], error) {
	if capacity <= 0 {
		return nil, nil
	}
	recent, err := lru.NewWithEvict[K, struct{}](capacity, func(key K, _ struct{}) {
		onEvict(key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create evictor: %w", err)
	}
	return &Evictor[K]{recent: recent}, nil
}

// Touch marks key as most recently used, possibly evicting the oldest key
func (e *Evictor[K]) Touch(key K) {
	if e == nil {
		return
	}
	e.recent.Add(key, struct{}{})
}

// Forget stops tracking key. The eviction callback fires for it, so the owner
// must tolerate removing a key that is already gone.
func (e *Evictor[K]) Forget(key K) {
	if e == nil {
		return
	}
	e.recent.Remove(key)
}

// Len returns the number of tracked keys
func (e *Evictor[K]) Len() int {
	if e == nil {
		return 0
	}
	return e.recent.Len()
}
