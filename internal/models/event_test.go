package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedEvent(t *testing.T, kind int, tags nostr.Tags, content string) *Event {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	ne := &nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	require.NoError(t, ne.Sign(sk))
	return FromNostrEvent(ne)
}

func TestEventValidation(t *testing.T) {
	t.Run("Valid complete event", func(t *testing.T) {
		event := signedEvent(t, nostr.KindTextNote, nostr.Tags{}, "Test content")
		assert.NoError(t, event.Validate())
		assert.NoError(t, event.Verify())
	})

	t.Run("Old events are fine", func(t *testing.T) {
		event := &Event{ID: "id", PubKey: "pk", Sig: "sig", CreatedAt: 1000}
		assert.NoError(t, event.Validate())
	})

	t.Run("Event in future", func(t *testing.T) {
		event := signedEvent(t, nostr.KindTextNote, nostr.Tags{}, "Test content")
		event.CreatedAt = nostr.Timestamp(time.Now().Add(time.Hour).Unix())
		err := event.Validate()
		assert.ErrorIs(t, err, ErrEventInFuture)
	})

	t.Run("Small clock skew is tolerated", func(t *testing.T) {
		event := &Event{ID: "id", PubKey: "pk", Sig: "sig", CreatedAt: nostr.Timestamp(time.Now().Add(5 * time.Minute).Unix())}
		assert.NoError(t, event.Validate())
	})

	t.Run("Missing required fields", func(t *testing.T) {
		event := &Event{
			CreatedAt: nostr.Now(),
			Kind:      1,
			Tags:      nostr.Tags{},
			Content:   "test",
		}
		err := event.Validate()
		assert.ErrorIs(t, err, ErrMissingRequiredFields)
		assert.Contains(t, err.Error(), "required fields")
	})
}

func TestEventVerify(t *testing.T) {
	t.Run("Tampered content", func(t *testing.T) {
		event := signedEvent(t, nostr.KindTextNote, nostr.Tags{}, "original")
		event.Content = "tampered"
		assert.ErrorIs(t, event.Verify(), ErrInvalidID)
	})

	t.Run("Forged signature", func(t *testing.T) {
		event := signedEvent(t, nostr.KindTextNote, nostr.Tags{}, "original")
		other := signedEvent(t, nostr.KindTextNote, nostr.Tags{}, "other")
		event.Sig = other.Sig
		assert.ErrorIs(t, event.Verify(), ErrInvalidSignature)
	})
}

func TestKindClasses(t *testing.T) {
	cases := []struct {
		kind  int
		class KindClass
	}{
		{nostr.KindProfileMetadata, KindReplaceable},
		{nostr.KindTextNote, KindRegular},
		{nostr.KindFollowList, KindReplaceable},
		{nostr.KindDeletion, KindRegular},
		{nostr.KindRelayListMetadata, KindReplaceable},
		{20001, KindEphemeral},
		{30023, KindAddressable},
		{40000, KindRegular},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.class, ClassOf(tc.kind), "kind %d", tc.kind)
	}
	assert.Equal(t, "addressable", KindAddressable.String())
}

func TestEventRoles(t *testing.T) {
	assert.Equal(t, RoleDeletion, (&Event{Kind: nostr.KindDeletion}).Role())
	assert.Equal(t, RoleRelayList, (&Event{Kind: nostr.KindRelayListMetadata}).Role())
	assert.Equal(t, RoleNote, (&Event{Kind: nostr.KindTextNote}).Role())
}

func TestAddresses(t *testing.T) {
	t.Run("Addressable", func(t *testing.T) {
		event := &Event{Kind: 30023, PubKey: "pk", Tags: nostr.Tags{{"d", "post"}, {"d", "ignored"}}}
		assert.True(t, event.IsReplaceable())
		assert.Equal(t, "post", event.DTag())
		assert.Equal(t, "30023:pk:post", event.Address())
	})

	t.Run("Replaceable ignores d", func(t *testing.T) {
		event := &Event{Kind: nostr.KindProfileMetadata, PubKey: "pk", Tags: nostr.Tags{{"d", "x"}}}
		assert.Equal(t, "0:pk:", event.Address())
	})

	t.Run("Regular events have none", func(t *testing.T) {
		event := &Event{Kind: nostr.KindTextNote, PubKey: "pk"}
		assert.False(t, event.IsReplaceable())
		assert.Equal(t, "", event.Address())
	})

	t.Run("Parse", func(t *testing.T) {
		kind, pubkey, d, err := ParseAddress("30023:pk:with:colons")
		require.NoError(t, err)
		assert.Equal(t, 30023, kind)
		assert.Equal(t, "pk", pubkey)
		assert.Equal(t, "with:colons", d)

		_, _, _, err = ParseAddress("not-an-address")
		assert.ErrorIs(t, err, ErrInvalidAddress)
		_, _, _, err = ParseAddress("x:pk:d")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})
}

func TestDeletionReferences(t *testing.T) {
	event := &Event{
		Kind: nostr.KindDeletion,
		Tags: nostr.Tags{
			{"e", "id1"},
			{"a", "30023:pk:post"},
			{"e", "id2", "wss://relay.example.com"},
			{"e"},
			{"k", "1"},
		},
	}
	assert.Equal(t, []string{"id1", "id2"}, event.DeletedIDs())
	assert.Equal(t, []string{"30023:pk:post"}, event.DeletedAddresses())
}

func TestEventSerialization(t *testing.T) {
	event := signedEvent(t, nostr.KindTextNote, nostr.Tags{{"t", "nostr"}}, "hello")

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ReceivedAt")

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NoError(t, decoded.Verify())
	assert.Equal(t, event.ToNostrEvent().ID, decoded.ID)
}
