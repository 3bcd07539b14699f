// Package cache provides the concurrent, key-ordered map that backs every
// index of the local client.
//
// Per-key operations are linearizable. Traversals are a single weakly
// consistent scan over the live map: they never hold a lock for the whole
// scan and may observe some but not all of a concurrent batch of writes, but
// never a torn entry. Every traversal returns a freshly materialized slice or
// map ordered by key.
package cache

import (
	"cmp"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
)

// Cache is a concurrent map from a totally ordered key to a value. Values are
// replaced, never mutated in place, so readers never race with writers.
type Cache[K comparable, V any] struct {
	data    *xsync.MapOf[K, V]
	compare func(a, b K) int
}

// New creates a cache whose keys are ordered by compare
func New[K comparable, V any](compare func(a, b K) int) *Cache[K, V] {
	return &Cache[K, V]{
		data:    xsync.NewMapOf[K, V](),
		compare: compare,
	}
}

// NewOrdered creates a cache for naturally ordered keys
func NewOrdered[K cmp.Ordered, V any]() *Cache[K, V] {
	return New[K, V](cmp.Compare[K])
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.data.Load(key)
}

func (c *Cache[K, V]) Put(key K, value V) {
	c.data.Store(key, value)
}

// Remove deletes the key and returns the value it held, if any
func (c *Cache[K, V]) Remove(key K) (V, bool) {
	return c.data.LoadAndDelete(key)
}

func (c *Cache[K, V]) ContainsKey(key K) bool {
	_, ok := c.data.Load(key)
	return ok
}

// Size returns the number of entries. Under concurrent writes it is an
// approximation.
func (c *Cache[K, V]) Size() int {
	return c.data.Size()
}

// GetOrCreate returns the value stored under key, creating it with factory
// when absent. The factory runs outside of any lock and may run more than once
// when callers race on the same key; only one result is kept and every caller
// gets that one. A panicking factory leaves the key absent.
func (c *Cache[K, V]) GetOrCreate(key K, factory func(K) V) V {
	if v, ok := c.data.Load(key); ok {
		return v
	}
	actual, _ := c.data.LoadOrStore(key, factory(key))
	return actual
}

// TryGetOrCreate is GetOrCreate for factories that can fail. On error nothing
// is stored.
func (c *Cache[K, V]) TryGetOrCreate(key K, factory func(K) (V, error)) (V, error) {
	if v, ok := c.data.Load(key); ok {
		return v, nil
	}
	v, err := factory(key)
	if err != nil {
		var zero V
		return zero, err
	}
	actual, _ := c.data.LoadOrStore(key, v)
	return actual, nil
}

// Update atomically replaces the value under key with the result of fn. fn
// receives the current value and whether it exists; returning keep=false
// removes the key. fn runs under the key's bucket lock and must not call back
// into the cache.
func (c *Cache[K, V]) Update(key K, fn func(old V, loaded bool) (value V, keep bool)) (V, bool) {
	return c.data.Compute(key, func(old V, loaded bool) (V, bool) {
		v, keep := fn(old, loaded)
		return v, !keep
	})
}

// Clear removes every entry
func (c *Cache[K, V]) Clear() {
	c.data.Clear()
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// scan collects the entries accepted by keep and sorts them by key
func (c *Cache[K, V]) scan(keep func(K, V) bool) []entry[K, V] {
	entries := make([]entry[K, V], 0, c.data.Size())
	c.data.Range(func(k K, v V) bool {
		if keep == nil || keep(k, v) {
			entries = append(entries, entry[K, V]{key: k, value: v})
		}
		return true
	})
	slices.SortFunc(entries, func(a, b entry[K, V]) int {
		return c.compare(a.key, b.key)
	})
	return entries
}

// Keys returns every key in order
func (c *Cache[K, V]) Keys() []K {
	entries := c.scan(nil)
	keys := make([]K, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Values returns every value in key order
func (c *Cache[K, V]) Values() []V {
	return c.Filter(nil)
}

// Filter returns, in key order, the values accepted by pred. A nil pred
// accepts everything.
func (c *Cache[K, V]) Filter(pred func(K, V) bool) []V {
	entries := c.scan(pred)
	values := make([]V, len(entries))
	for i, e := range entries {
		values[i] = e.value
	}
	return values
}

// FilterKeys returns, in order, the keys whose entries are accepted by pred
func (c *Cache[K, V]) FilterKeys(pred func(K, V) bool) []K {
	entries := c.scan(pred)
	keys := make([]K, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Count returns how many entries are accepted by pred. A nil pred counts
// every entry.
func (c *Cache[K, V]) Count(pred func(K, V) bool) int {
	if pred == nil {
		return c.Size()
	}
	n := 0
	c.data.Range(func(k K, v V) bool {
		if pred(k, v) {
			n++
		}
		return true
	})
	return n
}

// ForEach calls fn for every entry in key order. The entries are collected
// first so fn may write to the cache.
func (c *Cache[K, V]) ForEach(fn func(K, V)) {
	for _, e := range c.scan(nil) {
		fn(e.key, e.value)
	}
}
