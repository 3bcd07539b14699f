package localcache

import (
	"sort"

	"mercury-client/internal/models"

	"github.com/nbd-wtf/go-nostr"
)

// Query returns the cached events matching filter, newest first. Only the
// current version of replaceable events is ever cached, so no extra
// collapsing is needed. A positive filter.Limit bounds the result.
func (lc *LocalCache) Query(filter nostr.Filter) []*models.Event {
	var events []*models.Event
	if len(filter.IDs) > 0 {
		for _, id := range filter.IDs {
			if ev, ok := lc.notes.Get(id); ok && filter.Matches(ev.ToNostrEvent()) {
				events = append(events, ev)
			}
		}
	} else {
		events = lc.notes.Filter(func(_ string, ev *models.Event) bool {
			return filter.Matches(ev.ToNostrEvent())
		})
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events
}
