// Package localcache is the in-memory store of the client. It receives
// verified events from relay workers, keeps tombstones and relay lists up to
// date and tells the feeds what changed.
package localcache

import (
	"fmt"
	"sync/atomic"

	"mercury-client/internal/cache"
	"mercury-client/internal/config"
	"mercury-client/internal/metrics"
	"mercury-client/internal/models"
	"mercury-client/internal/outbox"
	"mercury-client/internal/tombstone"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

// Listener is notified after events enter or leave the cache. Calls happen on
// the ingesting goroutine and must not block.
type Listener interface {
	NewEvents(events []*models.Event)
	DeletedEvents(events []*models.Event)
}

// Stats is a snapshot of the cache sizes
type Stats struct {
	Notes        int `json:"notes"`
	Addressables int `json:"addressables"`
	Tombstones   int `json:"tombstones"`
	RelayLists   int `json:"relay_lists"`
	Tracked      int `json:"tracked"`
	Listeners    int `json:"listeners"`
}

type LocalCache struct {
	notes        *cache.Cache[string, *models.Event]
	addressables *cache.Cache[string, *models.Event]
	tombstones   *tombstone.Index
	relays       *outbox.Directory
	evictor      *cache.Evictor[string]

	outbox config.OutboxConfig

	listeners  *xsync.MapOf[uint64, Listener]
	listenerID atomic.Uint64
}

func New(cacheCfg config.CacheConfig, outboxCfg config.OutboxConfig) (*LocalCache, error) {
	lc := &LocalCache{
		notes:        cache.NewOrdered[string, *models.Event](),
		addressables: cache.NewOrdered[string, *models.Event](),
		tombstones:   tombstone.NewIndex(),
		relays:       outbox.NewDirectory(),
		outbox:       outboxCfg,
		listeners:    xsync.NewMapOf[uint64, Listener](),
	}

	evictor, err := cache.NewEvictor(cacheCfg.MaxNotes, lc.evict)
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}
	lc.evictor = evictor

	return lc, nil
}

func (lc *LocalCache) evict(id string) {
	if _, ok := lc.notes.Remove(id); ok {
		metrics.CacheEvictions.Inc()
		logrus.Debugf("[cache] evicted %s", id)
	}
}

// Subscribe registers l and returns a function that removes it
func (lc *LocalCache) Subscribe(l Listener) func() {
	id := lc.listenerID.Add(1)
	lc.listeners.Store(id, l)
	return func() {
		lc.listeners.Delete(id)
	}
}

func (lc *LocalCache) notifyNew(events []*models.Event) {
	if len(events) == 0 {
		return
	}
	lc.listeners.Range(func(_ uint64, l Listener) bool {
		l.NewEvents(events)
		return true
	})
}

func (lc *LocalCache) notifyDeleted(events []*models.Event) {
	if len(events) == 0 {
		return
	}
	lc.listeners.Range(func(_ uint64, l Listener) bool {
		l.DeletedEvents(events)
		return true
	})
}

// OnEvent ingests a verified event and reports whether it was stored.
// Duplicates, ephemeral events, events their author already deleted and
// outdated versions of replaceable events are refused.
func (lc *LocalCache) OnEvent(ev *models.Event) bool {
	if ev == nil || ev.ID == "" {
		return false
	}

	class := ev.Class()
	result := lc.ingest(ev)
	metrics.EventsIngested.WithLabelValues(class.String(), result).Inc()
	if result != "stored" {
		logrus.Debugf("[cache] %s event %s: %s", class, ev.ID, result)
		return false
	}

	lc.updateGauges()
	return true
}

func (lc *LocalCache) ingest(ev *models.Event) string {
	if ev.Class() == models.KindEphemeral {
		return "ephemeral"
	}
	if lc.notes.ContainsKey(ev.ID) {
		return "duplicate"
	}
	if lc.tombstones.HasBeenDeleted(ev) {
		return "deleted"
	}

	var replaced *models.Event
	if ev.IsReplaceable() {
		var ok bool
		replaced, ok = lc.replace(ev)
		if !ok {
			return "stale"
		}
	}

	inserted := false
	lc.notes.Update(ev.ID, func(old *models.Event, loaded bool) (*models.Event, bool) {
		if loaded {
			return old, true
		}
		inserted = true
		return ev, true
	})
	if !inserted {
		return "duplicate"
	}
	if ev.Class() == models.KindRegular && ev.Role() == models.RoleNote {
		lc.evictor.Touch(ev.ID)
	}

	var removed []*models.Event
	if replaced != nil {
		if _, ok := lc.notes.Remove(replaced.ID); ok {
			removed = append(removed, replaced)
		}
	}

	switch ev.Role() {
	case models.RoleDeletion:
		removed = append(removed, lc.applyDeletion(ev)...)
	case models.RoleRelayList:
		lc.relays.Update(ev)
	}

	lc.notifyDeleted(removed)
	lc.notifyNew([]*models.Event{ev})
	return "stored"
}

// replace installs ev as the current version of its address. It returns the
// version it replaced, and false when a newer version is already stored.
func (lc *LocalCache) replace(ev *models.Event) (*models.Event, bool) {
	var previous *models.Event
	newer := false
	lc.addressables.Update(ev.Address(), func(old *models.Event, loaded bool) (*models.Event, bool) {
		if loaded && !supersedes(ev, old) {
			return old, true
		}
		if loaded {
			previous = old
		}
		newer = true
		return ev, true
	})
	return previous, newer
}

// supersedes orders versions of the same address: newest first, then lowest
// id
func supersedes(ev, old *models.Event) bool {
	if ev.CreatedAt != old.CreatedAt {
		return ev.CreatedAt > old.CreatedAt
	}
	return ev.ID < old.ID
}

// applyDeletion records the deletion and drops every cached event it removes
func (lc *LocalCache) applyDeletion(deletion *models.Event) []*models.Event {
	if lc.tombstones.Add(deletion) {
		metrics.DeletionsApplied.Inc()
	}

	var removed []*models.Event
	for _, id := range deletion.DeletedIDs() {
		note, ok := lc.notes.Get(id)
		if !ok || !lc.tombstones.HasBeenDeleted(note) {
			continue
		}
		if _, ok := lc.notes.Remove(id); ok {
			lc.evictor.Forget(id)
			if note.IsReplaceable() {
				lc.addressables.Update(note.Address(), func(old *models.Event, loaded bool) (*models.Event, bool) {
					return old, loaded && old.ID != note.ID
				})
			}
			removed = append(removed, note)
		}
	}

	for _, address := range deletion.DeletedAddresses() {
		var gone *models.Event
		lc.addressables.Update(address, func(old *models.Event, loaded bool) (*models.Event, bool) {
			if loaded && lc.tombstones.HasBeenDeleted(old) {
				gone = old
				return old, false
			}
			return old, loaded
		})
		if gone == nil {
			continue
		}
		if _, ok := lc.notes.Remove(gone.ID); ok {
			removed = append(removed, gone)
		}
	}

	if len(removed) > 0 {
		logrus.Infof("[cache] deletion %s from %s removed %d events", deletion.ID, deletion.PubKey, len(removed))
	}
	return removed
}

// OnRelayList replaces the author's relay list if ev is newer than the stored
// one. Lists signed by someone else are refused.
func (lc *LocalCache) OnRelayList(author string, ev *models.Event) bool {
	if ev == nil || ev.PubKey != author || ev.Role() != models.RoleRelayList {
		return false
	}
	if lc.tombstones.HasBeenDeleted(ev) {
		return false
	}
	previous, ok := lc.replace(ev)
	if !ok {
		return false
	}
	if previous != nil {
		lc.notes.Remove(previous.ID)
	}
	lc.notes.Put(ev.ID, ev)
	return lc.relays.Update(ev)
}

// HasBeenDeleted reports whether the event's author deleted it
func (lc *LocalCache) HasBeenDeleted(ev *models.Event) bool {
	return lc.tombstones.HasBeenDeleted(ev)
}

// Note returns a cached event by id
func (lc *LocalCache) Note(id string) (*models.Event, bool) {
	return lc.notes.Get(id)
}

// Addressable returns the current version stored at an address
func (lc *LocalCache) Addressable(address string) (*models.Event, bool) {
	return lc.addressables.Get(address)
}

// Notes returns the cached events accepted by pred, ordered by id
func (lc *LocalCache) Notes(pred func(*models.Event) bool) []*models.Event {
	if pred == nil {
		return lc.notes.Values()
	}
	return lc.notes.Filter(func(_ string, ev *models.Event) bool {
		return pred(ev)
	})
}

// Directory exposes the relay lists seen so far
func (lc *LocalCache) Directory() *outbox.Directory {
	return lc.relays
}

func (lc *LocalCache) Stats() Stats {
	return Stats{
		Notes:        lc.notes.Size(),
		Addressables: lc.addressables.Size(),
		Tombstones:   lc.tombstones.Size(),
		RelayLists:   lc.relays.Size(),
		Tracked:      lc.evictor.Len(),
		Listeners:    lc.listeners.Size(),
	}
}

func (lc *LocalCache) updateGauges() {
	stats := lc.Stats()
	metrics.CacheEntries.WithLabelValues("notes").Set(float64(stats.Notes))
	metrics.CacheEntries.WithLabelValues("addressables").Set(float64(stats.Addressables))
	metrics.CacheEntries.WithLabelValues("tombstones").Set(float64(stats.Tombstones))
	metrics.CacheEntries.WithLabelValues("relay_lists").Set(float64(stats.RelayLists))
}
