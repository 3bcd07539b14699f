// Package tombstone records deletion requests and answers whether an event
// has been deleted by its own author.
package tombstone

import (
	"strings"

	"mercury-client/internal/cache"
	"mercury-client/internal/models"

	"github.com/nbd-wtf/go-nostr"
)

// DeletionRequest is "Issuer asked to delete Reference", where Reference is an
// event id or an address
type DeletionRequest struct {
	Reference string
	Issuer    string
}

// Compare orders requests by reference, then issuer
func (d DeletionRequest) Compare(other DeletionRequest) int {
	if c := strings.Compare(d.Reference, other.Reference); c != 0 {
		return c
	}
	return strings.Compare(d.Issuer, other.Issuer)
}

// Index keeps the newest deletion timestamp per request. Merges are
// commutative and idempotent, so deletions from any number of relays can be
// added concurrently without coordination. Entries are never removed.
type Index struct {
	requests *cache.Cache[DeletionRequest, nostr.Timestamp]
}

func NewIndex() *Index {
	return &Index{
		requests: cache.New[DeletionRequest, nostr.Timestamp](func(a, b DeletionRequest) int {
			return a.Compare(b)
		}),
	}
}

// Add records every reference of a deletion event. It returns true if any
// stored timestamp advanced; replaying the same or an older deletion returns
// false. Events that are not deletions are ignored.
func (i *Index) Add(deletion *models.Event) bool {
	if deletion == nil || deletion.Role() != models.RoleDeletion {
		return false
	}

	advanced := false
	for _, ref := range deletion.DeletedIDs() {
		if i.add(DeletionRequest{Reference: ref, Issuer: deletion.PubKey}, deletion.CreatedAt) {
			advanced = true
		}
	}
	for _, ref := range deletion.DeletedAddresses() {
		if i.add(DeletionRequest{Reference: ref, Issuer: deletion.PubKey}, deletion.CreatedAt) {
			advanced = true
		}
	}
	return advanced
}

func (i *Index) add(req DeletionRequest, at nostr.Timestamp) bool {
	advanced := false
	i.requests.Update(req, func(old nostr.Timestamp, loaded bool) (nostr.Timestamp, bool) {
		if loaded && old >= at {
			return old, true
		}
		advanced = true
		return at, true
	})
	return advanced
}

// HasBeenDeleted reports whether the event's author asked for it to be
// deleted. A replaceable event published at the same second as a deletion of
// its address counts as deleted.
func (i *Index) HasBeenDeleted(ev *models.Event) bool {
	_, deleted := i.DeletedAt(ev)
	return deleted
}

// DeletedAt returns the timestamp of the deletion that removed the event
func (i *Index) DeletedAt(ev *models.Event) (nostr.Timestamp, bool) {
	if ev == nil {
		return 0, false
	}
	if at, ok := i.requests.Get(DeletionRequest{Reference: ev.ID, Issuer: ev.PubKey}); ok {
		return at, true
	}
	if ev.IsReplaceable() {
		at, ok := i.requests.Get(DeletionRequest{Reference: ev.Address(), Issuer: ev.PubKey})
		if ok && at >= ev.CreatedAt {
			return at, true
		}
	}
	return 0, false
}

// Size returns the number of recorded requests
func (i *Index) Size() int {
	return i.requests.Size()
}

// Requests returns every recorded request in order
func (i *Index) Requests() []DeletionRequest {
	return i.requests.Keys()
}
