package outbox

import (
	"testing"

	"mercury-client/internal/models"
	"mercury-client/internal/testgen"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRelayList(t *testing.T) {
	ev := &models.Event{
		ID:        "list",
		PubKey:    "p1",
		CreatedAt: 10,
		Kind:      nostr.KindRelayListMetadata,
		Tags: nostr.Tags{
			{"r", "wss://both.example.com"},
			{"r", "wss://write.example.com", "write"},
			{"r", "wss://read.example.com", "read"},
			{"r", "wss://both.example.com/"},
			{"r", "ftp://not-a-relay.example.com"},
			{"r", ""},
			{"p", "someone"},
		},
	}

	list := ParseRelayList(ev)
	assert.Equal(t, "list", list.EventID)
	assert.Equal(t, nostr.Timestamp(10), list.CreatedAt)
	assert.Equal(t, []string{"wss://both.example.com", "wss://write.example.com"}, list.WriteRelays)
	assert.Equal(t, []string{"wss://both.example.com", "wss://read.example.com"}, list.ReadRelays)
}

func TestNormalizeRelayURL(t *testing.T) {
	assert.Equal(t, "wss://relay.example.com", NormalizeRelayURL(" wss://relay.example.com/ "))
	assert.Equal(t, "", NormalizeRelayURL(""))
	assert.Equal(t, "", NormalizeRelayURL("ftp://relay.example.com"))
}

func TestDirectoryUpdate(t *testing.T) {
	g := testgen.NewGenerator(7)
	alice := g.NewPersona("alice", r1, r2)

	t.Run("Newer lists replace, older lists are dropped", func(t *testing.T) {
		dir := NewDirectory()
		first := g.RelayList(alice, 100)
		require.True(t, dir.Update(first))
		assert.Equal(t, []string{r1, r2}, dir.WriteRelays(alice.PubKey))

		moved := alice
		moved.WriteRelays = []string{r3}
		second := g.RelayList(moved, 200)
		assert.True(t, dir.Update(second))
		assert.Equal(t, []string{r3}, dir.WriteRelays(alice.PubKey))

		assert.False(t, dir.Update(first))
		assert.False(t, dir.Update(second))
		assert.Equal(t, []string{r3}, dir.WriteRelays(alice.PubKey))
		assert.Equal(t, 1, dir.Size())
	})

	t.Run("Read-only relays do not count as write relays", func(t *testing.T) {
		dir := NewDirectory()
		dir.Update(g.RelayList(alice, 100, r4))
		list, ok := dir.Get(alice.PubKey)
		require.True(t, ok)
		assert.NotContains(t, list.WriteRelays, r4)
		assert.Contains(t, list.ReadRelays, r4)
	})

	t.Run("Other kinds are ignored", func(t *testing.T) {
		dir := NewDirectory()
		assert.False(t, dir.Update(g.TextNote(alice, "hi", 100)))
		assert.False(t, dir.Update(nil))
		assert.Equal(t, 0, dir.Size())
	})

	t.Run("Snapshot and popularity", func(t *testing.T) {
		dir := NewDirectory()
		bob := g.NewPersona("bob", r2, r3)
		dir.Update(g.RelayList(alice, 100))
		dir.Update(g.RelayList(bob, 100))

		snap := dir.Snapshot([]string{alice.PubKey, bob.PubKey, "unknown"})
		assert.Len(t, snap, 2)
		assert.Equal(t, []string{r2, r3}, snap[bob.PubKey])
		assert.Equal(t, map[string]int{r1: 1, r2: 2, r3: 1}, dir.RelayPopularity())
	})
}
