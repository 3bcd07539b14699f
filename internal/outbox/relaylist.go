// Package outbox tracks where each author publishes and picks the relays to
// subscribe to so that every followed author is reachable twice.
package outbox

import (
	"net/url"
	"sort"
	"strings"

	"mercury-client/internal/cache"
	"mercury-client/internal/models"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

// RelayList is the latest relay-list document seen for an author
type RelayList struct {
	EventID     string
	CreatedAt   nostr.Timestamp
	WriteRelays []string
	ReadRelays  []string
}

// ParseRelayList extracts normalized read and write relays from a kind 10002
// event. Tags without a marker count as both.
func ParseRelayList(ev *models.Event) RelayList {
	list := RelayList{EventID: ev.ID, CreatedAt: ev.CreatedAt}
	seenWrite := make(map[string]bool)
	seenRead := make(map[string]bool)

	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		relay := NormalizeRelayURL(tag[1])
		if relay == "" {
			continue
		}
		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}
		if (marker == "" || marker == "write") && !seenWrite[relay] {
			seenWrite[relay] = true
			list.WriteRelays = append(list.WriteRelays, relay)
		}
		if (marker == "" || marker == "read") && !seenRead[relay] {
			seenRead[relay] = true
			list.ReadRelays = append(list.ReadRelays, relay)
		}
	}

	sort.Strings(list.WriteRelays)
	sort.Strings(list.ReadRelays)
	return list
}

// NormalizeRelayURL returns the canonical websocket form of a relay URL, or ""
// when it cannot name a relay
func NormalizeRelayURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.Index(raw, "://"); i >= 0 {
		switch strings.ToLower(raw[:i]) {
		case "ws", "wss", "http", "https":
		default:
			return ""
		}
	}

	normalized := nostr.NormalizeURL(raw)
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" {
		return ""
	}
	return normalized
}

// Directory maps each author to their latest relay list. A newer list
// replaces the old one wholesale.
type Directory struct {
	lists *cache.Cache[string, RelayList]
}

func NewDirectory() *Directory {
	return &Directory{lists: cache.NewOrdered[string, RelayList]()}
}

// Update stores the relay list carried by ev if it is newer than what is
// stored for its author. It returns false for stale or non relay-list events.
func (d *Directory) Update(ev *models.Event) bool {
	if ev == nil || ev.Role() != models.RoleRelayList {
		return false
	}
	return d.Put(ev.PubKey, ParseRelayList(ev))
}

// Put stores list for author if it is strictly newer than the stored one
func (d *Directory) Put(author string, list RelayList) bool {
	replaced := false
	d.lists.Update(author, func(old RelayList, loaded bool) (RelayList, bool) {
		if loaded && old.CreatedAt >= list.CreatedAt {
			return old, true
		}
		replaced = true
		return list, true
	})
	if replaced {
		logrus.Debugf("[outbox] relay list for %s now has %d write relays", author, len(list.WriteRelays))
	}
	return replaced
}

// Get returns the stored relay list of an author
func (d *Directory) Get(author string) (RelayList, bool) {
	return d.lists.Get(author)
}

// WriteRelays returns the write relays of an author
func (d *Directory) WriteRelays(author string) []string {
	list, ok := d.lists.Get(author)
	if !ok {
		return nil
	}
	return list.WriteRelays
}

// Snapshot returns author -> write relays for the given authors. Authors
// without a known list are left out.
func (d *Directory) Snapshot(authors []string) map[string][]string {
	out := make(map[string][]string, len(authors))
	for _, author := range authors {
		if list, ok := d.lists.Get(author); ok {
			out[author] = list.WriteRelays
		}
	}
	return out
}

// Size returns the number of authors with a relay list
func (d *Directory) Size() int {
	return d.lists.Size()
}

// RelayPopularity counts how many authors write to each relay
func (d *Directory) RelayPopularity() map[string]int {
	counts := make(map[string]int)
	for _, relays := range cache.Map(d.lists, func(_ string, l RelayList) []string { return l.WriteRelays }) {
		for _, r := range relays {
			counts[r]++
		}
	}
	return counts
}
