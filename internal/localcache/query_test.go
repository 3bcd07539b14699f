package localcache

import (
	"testing"

	"mercury-client/internal/models"
	"mercury-client/internal/testgen"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
)

func TestQuery(t *testing.T) {
	lc := newTestCache(t, 0)
	g := testgen.NewGenerator(20)
	alice := g.NewPersona("alice", r1)
	bob := g.NewPersona("bob", r2)

	n1 := g.TextNote(alice, "one", 100)
	n2 := g.TextNote(alice, "two", 200)
	n3 := g.TextNote(bob, "three", 300)
	list := g.RelayList(alice, 150)
	gone := g.TextNote(bob, "gone", 250)
	for _, ev := range []*models.Event{n1, n2, n3, list, gone} {
		lc.OnEvent(ev)
	}
	lc.OnEvent(g.Deletion(bob, 260, []string{gone.ID}, nil))

	since := nostr.Timestamp(150)
	until := nostr.Timestamp(250)

	t.Run("Authors and kinds", func(t *testing.T) {
		got := lc.Query(nostr.Filter{Authors: []string{alice.PubKey}, Kinds: []int{nostr.KindTextNote}})
		assert.Equal(t, []string{n2.ID, n1.ID}, eventIDs(got))
	})

	t.Run("Time range", func(t *testing.T) {
		got := lc.Query(nostr.Filter{Since: &since, Until: &until})
		assert.Equal(t, []string{n2.ID, list.ID}, eventIDs(got))
	})

	t.Run("Ids", func(t *testing.T) {
		got := lc.Query(nostr.Filter{IDs: []string{n3.ID, gone.ID, "unknown"}})
		assert.Equal(t, []string{n3.ID}, eventIDs(got))
	})

	t.Run("Limit", func(t *testing.T) {
		got := lc.Query(nostr.Filter{Kinds: []int{nostr.KindTextNote}, Limit: 2})
		assert.Equal(t, []string{n3.ID, n2.ID}, eventIDs(got))
	})
}
