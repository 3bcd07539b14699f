package testgen

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"mercury-client/internal/models"

	"github.com/nbd-wtf/go-nostr"
)

// Persona is a synthetic author with its own keys and write relays
type Persona struct {
	Name        string
	PubKey      string
	PrivateKey  string
	WriteRelays []string
}

// Generator produces signed events for tests and for the gen command
type Generator struct {
	rand  *rand.Rand
	clock nostr.Timestamp
}

// NewGenerator creates a generator. The same seed yields the same sequence of
// relay choices and timestamps; keys are always fresh.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rand:  rand.New(rand.NewSource(seed)),
		clock: nostr.Timestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()),
	}
}

// NewPersona creates an author with fresh keys
func (g *Generator) NewPersona(name string, writeRelays ...string) Persona {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	return Persona{
		Name:        name,
		PubKey:      pk,
		PrivateKey:  sk,
		WriteRelays: writeRelays,
	}
}

// Tick advances the generator clock and returns it
func (g *Generator) Tick() nostr.Timestamp {
	g.clock += nostr.Timestamp(1 + g.rand.Intn(60))
	return g.clock
}

// Sign builds and signs an event for the persona
func (g *Generator) Sign(p Persona, kind int, createdAt nostr.Timestamp, tags nostr.Tags, content string) *models.Event {
	ne := &nostr.Event{
		PubKey:    p.PubKey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if ne.Tags == nil {
		ne.Tags = nostr.Tags{}
	}
	if err := ne.Sign(p.PrivateKey); err != nil {
		panic(fmt.Sprintf("testgen: failed to sign event: %v", err))
	}
	return models.FromNostrEvent(ne)
}

// TextNote creates a kind 1 note
func (g *Generator) TextNote(p Persona, content string, createdAt nostr.Timestamp) *models.Event {
	return g.Sign(p, nostr.KindTextNote, createdAt, nil, content)
}

// Addressable creates an addressable event with the given d tag
func (g *Generator) Addressable(p Persona, kind int, dTag, content string, createdAt nostr.Timestamp) *models.Event {
	return g.Sign(p, kind, createdAt, nostr.Tags{{"d", dTag}}, content)
}

// Deletion creates a kind 5 event referencing event ids and addresses
func (g *Generator) Deletion(p Persona, createdAt nostr.Timestamp, ids []string, addresses []string) *models.Event {
	tags := nostr.Tags{}
	for _, id := range ids {
		tags = append(tags, nostr.Tag{"e", id})
	}
	for _, addr := range addresses {
		tags = append(tags, nostr.Tag{"a", addr})
	}
	return g.Sign(p, nostr.KindDeletion, createdAt, tags, "")
}

// RelayList creates a kind 10002 event advertising the persona's write relays
// and the given read-only relays
func (g *Generator) RelayList(p Persona, createdAt nostr.Timestamp, readOnly ...string) *models.Event {
	tags := nostr.Tags{}
	for _, url := range p.WriteRelays {
		tags = append(tags, nostr.Tag{"r", url})
	}
	for _, url := range readOnly {
		tags = append(tags, nostr.Tag{"r", url, "read"})
	}
	return g.Sign(p, nostr.KindRelayListMetadata, createdAt, tags, "")
}

// Network creates authors spread over a pool of relays. Every author gets
// between minRelays and maxRelays distinct write relays.
func (g *Generator) Network(authors int, relays []string, minRelays, maxRelays int) []Persona {
	if maxRelays > len(relays) {
		maxRelays = len(relays)
	}
	if minRelays > maxRelays {
		minRelays = maxRelays
	}

	personas := make([]Persona, 0, authors)
	for i := 0; i < authors; i++ {
		n := minRelays
		if maxRelays > minRelays {
			n += g.rand.Intn(maxRelays - minRelays + 1)
		}
		picked := make([]string, 0, n)
		for _, idx := range g.rand.Perm(len(relays))[:n] {
			picked = append(picked, relays[idx])
		}
		personas = append(personas, g.NewPersona(fmt.Sprintf("author-%d", i), picked...))
	}
	return personas
}

// WriteJSONL writes one event per line
func WriteJSONL(w io.Writer, events []*models.Event) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
		}
	}
	return nil
}
