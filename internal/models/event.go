package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// Event represents a Nostr event as held by the local cache
type Event struct {
	ID         string          `json:"id"`
	PubKey     string          `json:"pubkey"`
	CreatedAt  nostr.Timestamp `json:"created_at"`
	Kind       int             `json:"kind"`
	Tags       nostr.Tags      `json:"tags"`
	Content    string          `json:"content"`
	Sig        string          `json:"sig"`
	ReceivedAt time.Time       `json:"-"`
}

// KindClass is the storage class a kind belongs to (NIP-01 ranges)
type KindClass int

const (
	KindRegular KindClass = iota
	KindReplaceable
	KindEphemeral
	KindAddressable
)

func (c KindClass) String() string {
	switch c {
	case KindRegular:
		return "regular"
	case KindReplaceable:
		return "replaceable"
	case KindEphemeral:
		return "ephemeral"
	case KindAddressable:
		return "addressable"
	}
	return "unknown"
}

// ClassOf returns the storage class of an event kind
func ClassOf(kind int) KindClass {
	switch {
	case kind == nostr.KindProfileMetadata || kind == nostr.KindFollowList:
		return KindReplaceable
	case kind >= 10000 && kind < 20000:
		return KindReplaceable
	case kind >= 20000 && kind < 30000:
		return KindEphemeral
	case kind >= 30000 && kind < 40000:
		return KindAddressable
	default:
		return KindRegular
	}
}

// Role is what the local cache does with an event beyond storing it
type Role int

const (
	RoleNote Role = iota
	RoleDeletion
	RoleRelayList
)

// Role returns the routing role of the event
func (e *Event) Role() Role {
	switch e.Kind {
	case nostr.KindDeletion:
		return RoleDeletion
	case nostr.KindRelayListMetadata:
		return RoleRelayList
	default:
		return RoleNote
	}
}

// Class returns the storage class of the event kind
func (e *Event) Class() KindClass {
	return ClassOf(e.Kind)
}

// IsReplaceable reports whether a newer event with the same address supersedes this one
func (e *Event) IsReplaceable() bool {
	c := e.Class()
	return c == KindReplaceable || c == KindAddressable
}

// DTag returns the value of the first "d" tag, or "" when absent
func (e *Event) DTag() string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			return tag[1]
		}
	}
	return ""
}

// Address returns the "kind:pubkey:d" address of a replaceable or addressable
// event. Plain replaceable kinds use an empty d component.
func (e *Event) Address() string {
	if !e.IsReplaceable() {
		return ""
	}
	dTag := ""
	if e.Class() == KindAddressable {
		dTag = e.DTag()
	}
	return FormatAddress(e.Kind, e.PubKey, dTag)
}

// FormatAddress builds an address tag value
func FormatAddress(kind int, pubkey, dTag string) string {
	return fmt.Sprintf("%d:%s:%s", kind, pubkey, dTag)
}

// ParseAddress splits an address tag value into its parts
func ParseAddress(address string) (kind int, pubkey string, dTag string, err error) {
	parts := strings.SplitN(address, ":", 3)
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	kind, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return kind, parts[1], parts[2], nil
}

// TagValues returns the second element of every tag with the given name
func (e *Event) TagValues(name string) []string {
	var values []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name && tag[1] != "" {
			values = append(values, tag[1])
		}
	}
	return values
}

// DeletedIDs returns the event ids referenced by a deletion event
func (e *Event) DeletedIDs() []string {
	return e.TagValues("e")
}

// DeletedAddresses returns the addresses referenced by a deletion event
func (e *Event) DeletedAddresses() []string {
	return e.TagValues("a")
}

// ToNostrEvent converts our Event to a nostr.Event
func (e *Event) ToNostrEvent() *nostr.Event {
	return &nostr.Event{
		ID:        e.ID,
		PubKey:    e.PubKey,
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
		Sig:       e.Sig,
	}
}

// FromNostrEvent creates an Event from a nostr.Event
func FromNostrEvent(ne *nostr.Event) *Event {
	return &Event{
		ID:         ne.ID,
		PubKey:     ne.PubKey,
		CreatedAt:  ne.CreatedAt,
		Kind:       ne.Kind,
		Tags:       ne.Tags,
		Content:    ne.Content,
		Sig:        ne.Sig,
		ReceivedAt: time.Now(),
	}
}

// Validate performs structural validation on the event
func (e *Event) Validate() error {
	if e.ID == "" || e.PubKey == "" || e.Sig == "" {
		return ErrMissingRequiredFields
	}

	// Allow for some clock skew between us and the author
	if e.CreatedAt.Time().After(time.Now().Add(15 * time.Minute)) {
		return ErrEventInFuture
	}

	return nil
}

// Verify checks the event id and signature. Events that fail here must never
// reach the cache.
func (e *Event) Verify() error {
	if err := e.Validate(); err != nil {
		return err
	}

	ne := e.ToNostrEvent()
	if ne.GetID() != e.ID {
		return ErrInvalidID
	}

	ok, err := ne.CheckSignature()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

// Error definitions
var (
	ErrEventInFuture         = fmt.Errorf("event is in the future")
	ErrMissingRequiredFields = fmt.Errorf("missing required fields")
	ErrInvalidID             = fmt.Errorf("event id does not match its content")
	ErrInvalidSignature      = fmt.Errorf("invalid event signature")
	ErrInvalidAddress        = fmt.Errorf("invalid address")
)
