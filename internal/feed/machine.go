package feed

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mercury-client/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Options configures a Machine
type Options[T any] struct {
	// Name labels logs and metrics
	Name string
	// Window is the debounce window of Invalidate and UpdateFeedWith
	Window time.Duration
	// IsDeleted drops tombstoned items from every view
	IsDeleted func(T) bool
}

// Machine holds the current State of one feed. Refresh, AdditiveUpdate and
// DeleteFromFeed bodies are serialized per machine; Invalidate and
// UpdateFeedWith schedule them through debouncing bundlers.
type Machine[T any] struct {
	name      string
	filter    Filter[T]
	isDeleted func(T) bool

	mu          sync.Mutex
	state       atomic.Pointer[State[T]]
	lastFeedKey atomic.Pointer[string]
	refreshing  atomic.Bool

	scrollToTop   atomic.Int64
	scrollPending atomic.Bool
	topRequested  atomic.Bool

	updates chan State[T]

	bundler *Bundler
	inserts *InsertBundler[T]
}

// NewMachine creates a machine in the Loading state. Nothing is evaluated
// until the first Refresh or Invalidate.
func NewMachine[T any](filter Filter[T], opts Options[T]) *Machine[T] {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%T", filter)
	}
	m := &Machine[T]{
		name:      name,
		filter:    filter,
		isDeleted: opts.IsDeleted,
		updates:   make(chan State[T], 1),
		bundler:   NewBundler(opts.Window),
		inserts:   NewInsertBundler[T](opts.Window),
	}
	m.state.Store(&State[T]{Kind: Loading})
	return m
}

// Name returns the feed name
func (m *Machine[T]) Name() string {
	return m.name
}

// State returns the current state
func (m *Machine[T]) State() State[T] {
	return *m.state.Load()
}

// CurrentView returns the items on display. It is empty unless Loaded.
func (m *Machine[T]) CurrentView() View[T] {
	s := m.state.Load()
	if s.Kind != Loaded {
		return View[T]{}
	}
	return s.View
}

// Updates delivers the latest state after every change. Only the newest
// undelivered state is kept.
func (m *Machine[T]) Updates() <-chan State[T] {
	return m.updates
}

// Refreshing reports whether a refresh body is running
func (m *Machine[T]) Refreshing() bool {
	return m.refreshing.Load()
}

// Refresh re-evaluates the filter over the whole backing collection
func (m *Machine[T]) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked()
}

func (m *Machine[T]) refreshLocked() {
	m.refreshing.Store(true)
	defer m.refreshing.Store(false)

	start := time.Now()
	defer func() {
		metrics.FeedRefreshDuration.WithLabelValues(m.name, "refresh").Observe(time.Since(start).Seconds())
	}()

	key := m.filter.FeedKey()
	items, err := m.load()
	if err != nil {
		logrus.Warnf("[feed] %s: refresh failed: %v", m.name, err)
		m.setState(State[T]{Kind: FeedError, Message: err.Error()})
		return
	}
	m.lastFeedKey.Store(&key)
	m.publish(m.bound(m.dropDeleted(items)))
}

// load calls the filter, turning a panic into an error
func (m *Machine[T]) load() (items []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feed %s: %v", m.name, r)
		}
	}()
	return m.filter.Feed()
}

// AdditiveUpdate merges newItems into the current view. It falls back to a
// full Refresh when the filter cannot merge, the view is not Loaded, or the
// feed key changed since the last refresh.
func (m *Machine[T]) AdditiveUpdate(newItems []T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	additive, ok := m.filter.(AdditiveFilter[T])
	current := m.state.Load()
	last := m.lastFeedKey.Load()
	if !ok || current.Kind != Loaded || last == nil || *last != m.filter.FeedKey() {
		m.refreshLocked()
		return
	}

	start := time.Now()
	fresh, err := m.applyFilter(additive, newItems)
	if err != nil {
		logrus.Warnf("[feed] %s: additive update failed, refreshing: %v", m.name, err)
		m.refreshLocked()
		return
	}

	merged := make([]T, 0, len(current.View.Items)+len(fresh))
	merged = append(merged, current.View.Items...)
	merged = append(merged, fresh...)
	m.publish(m.bound(m.dropDeleted(merged)))

	metrics.FeedRefreshDuration.WithLabelValues(m.name, "additive").Observe(time.Since(start).Seconds())
}

func (m *Machine[T]) applyFilter(additive AdditiveFilter[T], items []T) (out []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feed %s: %v", m.name, r)
		}
	}()
	return additive.ApplyFilter(items), nil
}

// DeleteFromFeed removes items from the current view without looking at the
// backing collection
func (m *Machine[T]) DeleteFromFeed(items []T) {
	if len(items) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.state.Load()
	if current.Kind != Loaded {
		return
	}

	gone := make(map[string]bool, len(items))
	for _, item := range items {
		gone[m.filter.Key(item)] = true
	}

	kept := make([]T, 0, len(current.View.Items))
	for _, item := range current.View.Items {
		if !gone[m.filter.Key(item)] {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(current.View.Items) {
		return
	}
	m.publish(View[T]{Items: kept, FullyLoadedUntil: current.View.FullyLoadedUntil})
}

func (m *Machine[T]) dropDeleted(items []T) []T {
	if m.isDeleted == nil {
		return items
	}
	kept := items[:0:0]
	for _, item := range items {
		if !m.isDeleted(item) {
			kept = append(kept, item)
		}
	}
	return kept
}

// bound deduplicates, sorts and truncates. Later items win over earlier ones
// with the same key.
func (m *Machine[T]) bound(items []T) View[T] {
	index := make(map[string]int, len(items))
	unique := make([]T, 0, len(items))
	for _, item := range items {
		key := m.filter.Key(item)
		if i, ok := index[key]; ok {
			unique[i] = item
			continue
		}
		index[key] = len(unique)
		unique = append(unique, item)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return m.filter.Less(unique[i], unique[j])
	})

	view := View[T]{Items: unique}
	if limit := m.filter.Limit(); limit > 0 && len(unique) >= limit {
		view.Items = unique[:limit]
		oldest := m.filter.CreatedAt(view.Items[0])
		for _, item := range view.Items[1:] {
			if at := m.filter.CreatedAt(item); at < oldest {
				oldest = at
			}
		}
		view.FullyLoadedUntil = &oldest
	}
	return view
}

// publish moves to Empty or Loaded unless the view is unchanged
func (m *Machine[T]) publish(view View[T]) {
	if len(view.Items) == 0 {
		if m.state.Load().Kind != Empty {
			m.setState(State[T]{Kind: Empty})
		}
		return
	}

	current := m.state.Load()
	if current.Kind == Loaded && m.sameItems(current.View.Items, view.Items) {
		return
	}
	m.setState(State[T]{Kind: Loaded, View: view})
}

func (m *Machine[T]) sameItems(a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if m.filter.Key(a[i]) != m.filter.Key(b[i]) || m.filter.CreatedAt(a[i]) != m.filter.CreatedAt(b[i]) {
			return false
		}
	}
	return true
}

func (m *Machine[T]) setState(s State[T]) {
	m.state.Store(&s)
	metrics.FeedStates.WithLabelValues(m.name, s.Kind.String()).Inc()
	logrus.Debugf("[feed] %s: %s (%d items)", m.name, s.Kind, len(s.View.Items))

	for {
		select {
		case m.updates <- s:
			return
		default:
			select {
			case <-m.updates:
			default:
			}
		}
	}
}

// Invalidate schedules a debounced Refresh
func (m *Machine[T]) Invalidate() {
	m.bundler.Invalidate(false, m.invalidated)
}

// InvalidateIfIdle schedules a Refresh unless one is already scheduled
func (m *Machine[T]) InvalidateIfIdle() {
	m.bundler.Invalidate(true, m.invalidated)
}

// InvalidateAndSendToTop schedules a Refresh followed by a scroll to the top.
// The scroll survives being coalesced with plain invalidations.
func (m *Machine[T]) InvalidateAndSendToTop() {
	m.topRequested.Store(true)
	m.bundler.Invalidate(false, m.invalidated)
}

func (m *Machine[T]) invalidated() {
	m.Refresh()
	if m.topRequested.Swap(false) {
		m.SendToTop()
	}
}

// CheckKeysInvalidate refreshes and scrolls to the top if the filter now
// looks at something else than at the last refresh
func (m *Machine[T]) CheckKeysInvalidate() bool {
	last := m.lastFeedKey.Load()
	if last != nil && *last == m.filter.FeedKey() {
		return false
	}
	m.InvalidateAndSendToTop()
	return true
}

// UpdateFeedWith feeds newly seen items to the machine: merged through a
// debounced AdditiveUpdate when possible, otherwise by invalidating
func (m *Machine[T]) UpdateFeedWith(newItems []T) {
	if len(newItems) == 0 {
		return
	}
	if _, ok := m.filter.(AdditiveFilter[T]); ok && m.state.Load().Kind == Loaded {
		m.inserts.Add(newItems, func(batches [][]T) {
			var all []T
			for _, batch := range batches {
				all = append(all, batch...)
			}
			m.AdditiveUpdate(all)
		})
		return
	}
	m.Invalidate()
}

// SendToTop asks consumers to scroll to the newest item. Requests made while
// a previous one is unacknowledged are dropped.
func (m *Machine[T]) SendToTop() {
	if m.scrollPending.CompareAndSwap(false, true) {
		m.scrollToTop.Add(1)
	}
}

// SentToTop acknowledges the pending scroll request
func (m *Machine[T]) SentToTop() {
	m.scrollPending.Store(false)
}

// ScrollToTop returns the scroll request counter
func (m *Machine[T]) ScrollToTop() int64 {
	return m.scrollToTop.Load()
}

// Close stops the bundlers. Scheduled work that has not started is dropped.
func (m *Machine[T]) Close() {
	m.bundler.Close()
	m.inserts.Close()
}
