package domain

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// ContactType distinguishes how a contact entered the session and how
// its identity is scoped. Chatroom contacts reuse the same id space as
// roster contacts but must never collide with them.
type ContactType int

const (
	ContactTemporary ContactType = iota
	ContactList
	ContactChatroom
	ContactUser
)

func (t ContactType) String() string {
	switch t {
	case ContactList:
		return "contactlist"
	case ContactChatroom:
		return "chatroom"
	case ContactUser:
		return "user"
	default:
		return "temporary"
	}
}

// Subscription is the roster subscription state between the local user
// and a contact.
type Subscription int

const (
	SubscriptionNone Subscription = iota
	SubscriptionTo
	SubscriptionFrom
	SubscriptionBoth
)

// Avatar is a contact picture plus its detected format.
type Avatar struct {
	Data   []byte
	Format string
}

// Contact is a remote party (or the local user) as known within one
// account's scope. The ContactManager guarantees at most one Contact
// per (account, id) identity; the entity itself only guards its own
// mutable fields so protocol goroutines of different accounts never
// contend.
type Contact struct {
	Type ContactType

	mu           sync.RWMutex
	id           string
	displayID    string
	name         string
	account      *Account
	presences    []Presence
	groups       map[string]struct{}
	subscription Subscription
	avatar       *Avatar
	vcard        *VCard
}

func NewContact(account *Account, typ ContactType, id string) *Contact {
	return &Contact{
		Type:      typ,
		id:        id,
		displayID: id,
		account:   account,
		groups:    make(map[string]struct{}),
	}
}

// Equal implements the identity rule: same account and same id, and for
// chatroom contacts the type must match too, because a room occupant
// and a roster entry may legitimately share an address.
func (c *Contact) Equal(other *Contact) bool {
	if other == nil {
		return false
	}
	if (c.Type == ContactChatroom) != (other.Type == ContactChatroom) {
		return false
	}
	if c.account == nil || other.account == nil {
		if c.account != other.account {
			return false
		}
	} else if !c.account.Equal(other.account) {
		return false
	}
	return c.ID() == other.ID()
}

// Hash combines the account identity and the contact id. Chatroom
// contacts with live presence additionally mix in their top resource so
// two occupants of the same room hash apart.
func (c *Contact) Hash() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := fnv.New64a()
	if c.account != nil {
		_, _ = h.Write([]byte(c.account.ID))
	}
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(c.id))
	if c.Type == ContactChatroom && len(c.presences) > 0 {
		_, _ = h.Write([]byte{'/'})
		_, _ = h.Write([]byte(c.presences[0].Resource))
	}
	return h.Sum64()
}

func (c *Contact) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// SetID rewrites the protocol address. Only chatroom own-contacts do
// this, when the room, server, or nick changes.
func (c *Contact) SetID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	c.displayID = id
}

func (c *Contact) DisplayID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayID
}

func (c *Contact) SetDisplayID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayID = id
}

// Name returns the display name, falling back to the display id so the
// UI never shows an empty label.
func (c *Contact) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.name != "" {
		return c.name
	}
	return c.displayID
}

// RawName returns the display name without the display-id fallback.
func (c *Contact) RawName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Contact) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

func (c *Contact) Account() *Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

func (c *Contact) Subscription() Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscription
}

func (c *Contact) SetSubscription(s Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = s
}

// SetPresence inserts or replaces the presence of one resource, keeping
// the list ordered by priority, highest first.
func (c *Contact) SetPresence(p Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.presences {
		if existing.Resource == p.Resource {
			c.presences = append(c.presences[:i], c.presences[i+1:]...)
			break
		}
	}
	at := sort.Search(len(c.presences), func(i int) bool {
		return c.presences[i].Priority < p.Priority
	})
	c.presences = append(c.presences, Presence{})
	copy(c.presences[at+1:], c.presences[at:])
	c.presences[at] = p
}

func (c *Contact) RemovePresence(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.presences {
		if existing.Resource == resource {
			c.presences = append(c.presences[:i], c.presences[i+1:]...)
			return
		}
	}
}

// TopPresence returns the highest-priority presence, or nil when the
// contact is offline everywhere.
func (c *Contact) TopPresence() *Presence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.presences) == 0 {
		return nil
	}
	top := c.presences[0]
	return &top
}

func (c *Contact) Presences() []Presence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Presence, len(c.presences))
	copy(out, c.presences)
	return out
}

func (c *Contact) Online() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.presences) > 0
}

func (c *Contact) SetGroups(groups []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[string]struct{}, len(groups))
	for _, g := range groups {
		c.groups[g] = struct{}{}
	}
}

func (c *Contact) Groups() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.groups))
	for g := range c.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// SetAvatar stores the picture and detects its format from the bytes;
// the wire never tells us reliably what it sent.
func (c *Contact) SetAvatar(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) == 0 {
		c.avatar = nil
		return
	}
	c.avatar = &Avatar{Data: data, Format: mimetype.Detect(data).String()}
}

func (c *Contact) Avatar() *Avatar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.avatar
}

func (c *Contact) SetVCard(v *VCard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vcard = v
}

func (c *Contact) VCard() *VCard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vcard
}
