package cache

import (
	"golang.org/x/exp/constraints"
)

// Number is anything SumOf can add up
type Number interface {
	constraints.Integer | constraints.Float
}

// Map transforms every entry, in key order
func Map[K comparable, V, R any](c *Cache[K, V], fn func(K, V) R) []R {
	entries := c.scan(nil)
	out := make([]R, len(entries))
	for i, e := range entries {
		out[i] = fn(e.key, e.value)
	}
	return out
}

// MapNotNil transforms every entry and drops the ones fn rejects
func MapNotNil[K comparable, V, R any](c *Cache[K, V], fn func(K, V) (R, bool)) []R {
	var out []R
	for _, e := range c.scan(nil) {
		if r, ok := fn(e.key, e.value); ok {
			out = append(out, r)
		}
	}
	return out
}

// MapFlatten transforms every entry into a slice and concatenates the results
func MapFlatten[K comparable, V, R any](c *Cache[K, V], fn func(K, V) []R) []R {
	var out []R
	for _, e := range c.scan(nil) {
		out = append(out, fn(e.key, e.value)...)
	}
	return out
}

// GroupBy buckets values by the group fn assigns them. Values inside a bucket
// keep key order.
func GroupBy[K comparable, V any, G comparable](c *Cache[K, V], fn func(K, V) G) map[G][]V {
	out := make(map[G][]V)
	for _, e := range c.scan(nil) {
		g := fn(e.key, e.value)
		out[g] = append(out[g], e.value)
	}
	return out
}

// CountByGroup counts entries per group
func CountByGroup[K comparable, V any, G comparable](c *Cache[K, V], fn func(K, V) G) map[G]int {
	out := make(map[G]int)
	c.data.Range(func(k K, v V) bool {
		out[fn(k, v)]++
		return true
	})
	return out
}

// SumOf adds up fn over every entry
func SumOf[K comparable, V any, N Number](c *Cache[K, V], fn func(K, V) N) N {
	var sum N
	c.data.Range(func(k K, v V) bool {
		sum += fn(k, v)
		return true
	})
	return sum
}

// MaxBy returns the value with the largest score. Ties go to the smaller key.
func MaxBy[K comparable, V any, N Number](c *Cache[K, V], score func(K, V) N) (V, bool) {
	var (
		best  V
		found bool
		top   N
	)
	for _, e := range c.scan(nil) {
		s := score(e.key, e.value)
		if !found || s > top {
			best, top, found = e.value, s, true
		}
	}
	return best, found
}
