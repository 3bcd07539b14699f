package feed

import (
	"sync"
	"time"
)

// DefaultWindow is the quiescence window used when none is configured
const DefaultWindow = 250 * time.Millisecond

// Bundler coalesces bursts of invalidations. The first request runs right
// away; every request made while that run or the following window is in
// progress collapses into a single trailing run, which is followed by another
// window. Because the window starts after the run finishes, slow runs
// naturally space themselves out.
type Bundler struct {
	window time.Duration

	mu      sync.Mutex
	running bool
	pending func()
	closed  bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewBundler(window time.Duration) *Bundler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Bundler{
		window: window,
		stop:   make(chan struct{}),
	}
}

// Invalidate asks for fn to run. With ignoreIfDoing set, a request made while
// a run is already scheduled is dropped instead of queuing a trailing run.
func (b *Bundler) Invalidate(ignoreIfDoing bool, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.running {
		if !ignoreIfDoing {
			b.pending = fn
		}
		return
	}

	b.running = true
	b.wg.Add(1)
	go b.run(fn)
}

func (b *Bundler) run(fn func()) {
	defer b.wg.Done()

	for {
		fn()

		timer := time.NewTimer(b.window)
		select {
		case <-timer.C:
		case <-b.stop:
			timer.Stop()
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
			return
		}

		b.mu.Lock()
		next := b.pending
		b.pending = nil
		if next == nil || b.closed {
			b.running = false
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		fn = next
	}
}

// Busy reports whether a run or its window is in progress
func (b *Bundler) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Close drops pending work and waits for an in-flight run to finish
func (b *Bundler) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.pending = nil
	close(b.stop)
	b.mu.Unlock()

	b.wg.Wait()
}

// InsertBundler accumulates batches of new items between runs and hands all
// of them to a single run
type InsertBundler[T any] struct {
	bundler *Bundler

	mu     sync.Mutex
	queue  [][]T
	closed bool
}

func NewInsertBundler[T any](window time.Duration) *InsertBundler[T] {
	return &InsertBundler[T]{bundler: NewBundler(window)}
}

// Add queues items and schedules fn to receive everything queued so far.
// Items added after Close are dropped.
func (ib *InsertBundler[T]) Add(items []T, fn func(batches [][]T)) {
	if len(items) == 0 {
		return
	}

	ib.mu.Lock()
	if ib.closed {
		ib.mu.Unlock()
		return
	}
	ib.queue = append(ib.queue, items)
	ib.mu.Unlock()

	ib.bundler.Invalidate(false, func() {
		ib.mu.Lock()
		batches := ib.queue
		ib.queue = nil
		ib.mu.Unlock()

		if len(batches) > 0 {
			fn(batches)
		}
	})
}

func (ib *InsertBundler[T]) Close() {
	ib.mu.Lock()
	ib.closed = true
	ib.queue = nil
	ib.mu.Unlock()

	ib.bundler.Close()
}

// Queued returns the number of batches waiting for a run
func (ib *InsertBundler[T]) Queued() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return len(ib.queue)
}
