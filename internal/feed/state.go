// Package feed turns the raw, constantly changing contents of the local cache
// into a stable, deduplicated, sorted and bounded view for display.
package feed

import (
	"github.com/nbd-wtf/go-nostr"
)

// StateKind tags the variants of State
type StateKind int

const (
	Loading StateKind = iota
	Empty
	Loaded
	FeedError
)

func (k StateKind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Empty:
		return "empty"
	case Loaded:
		return "loaded"
	case FeedError:
		return "error"
	}
	return "unknown"
}

// View is an ordered, deduplicated and bounded list of items
type View[T any] struct {
	Items []T
	// FullyLoadedUntil is the oldest timestamp inside the bound when the bound
	// was reached, nil when everything that matched fits in the view.
	FullyLoadedUntil *nostr.Timestamp
}

// Len returns the number of items in the view
func (v View[T]) Len() int {
	return len(v.Items)
}

// State is what a feed currently shows. View is only meaningful for Loaded
// and Message only for FeedError.
type State[T any] struct {
	Kind    StateKind
	View    View[T]
	Message string
}

// Filter selects, orders and bounds the items of a feed
type Filter[T any] interface {
	// FeedKey identifies what the filter is looking at (account, scope...).
	// A change of key invalidates incremental updates.
	FeedKey() string
	// Feed evaluates the filter over the whole backing collection
	Feed() ([]T, error)
	// Limit bounds the size of the view. Zero or less means unbounded.
	Limit() int
	// Less orders the view
	Less(a, b T) bool
	// Key deduplicates the view
	Key(item T) string
	// CreatedAt is used for the fully-loaded watermark
	CreatedAt(item T) nostr.Timestamp
}

// AdditiveFilter is a Filter that can merge new items into an existing view
// without a full scan
type AdditiveFilter[T any] interface {
	Filter[T]
	// ApplyFilter keeps the new items that belong in the feed
	ApplyFilter(items []T) []T
}
