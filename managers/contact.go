package managers

import (
	"log/slog"
	"sync"
	"time"

	"im-session/domain"
	"im-session/domain/event"
	"im-session/storage"
)

// StoreDelay is how long contact mutations are allowed to pile up
// before one disk write covers them all. Roster updates arrive in
// bursts; writing each one would hammer the disk for nothing.
const StoreDelay = time.Second

// ContactManager is the per-session cache of all known contacts,
// independent of which protocol produced them. It guarantees at most
// one Contact per (account, id) identity and persists a name-only
// cache for offline display.
type ContactManager struct {
	mu       sync.RWMutex
	log      *slog.Logger
	path     string
	accounts *AccountManager
	emitter  *event.Emitter
	contacts []*domain.Contact
	saver    *saver
}

func NewContactManager(log *slog.Logger, path string, accounts *AccountManager, emitter *event.Emitter) *ContactManager {
	m := &ContactManager{
		log:      log,
		path:     path,
		accounts: accounts,
		emitter:  emitter,
	}
	m.saver = newSaver(StoreDelay, func() {
		if err := m.StoreNow(); err != nil {
			m.log.Warn("Failed to persist contacts", "error", err)
		}
	})
	m.load()
	return m
}

func (m *ContactManager) load() {
	entries, err := storage.LoadContacts(m.path)
	if err != nil {
		m.log.Warn("Ignoring unreadable contacts file", "path", m.path, "error", err)
		return
	}
	for _, entry := range entries {
		account := m.accounts.Find(entry.Name)
		if account == nil {
			m.log.Warn("Skipping contacts of unknown account", "account", entry.Name)
			continue
		}
		if entry.Self.Name != "" {
			m.OwnContact(account).SetName(entry.Self.Name)
		}
		for _, c := range entry.Contacts {
			// The file is no authority over identity: drop entries that
			// collide with the own contact or with an already loaded one.
			if c.ID == account.ID || m.Find(account, c.ID) != nil {
				m.log.Warn("Skipping duplicate persisted contact", "account", entry.Name, "contact", c.ID)
				continue
			}
			contact := domain.NewContact(account, domain.ContactList, c.ID)
			contact.SetName(c.Name)
			m.mu.Lock()
			m.contacts = append(m.contacts, contact)
			m.mu.Unlock()
		}
	}
}

// Add inserts a contact unless it equals the account's own contact
// (self is tracked separately) or an equal contact already exists.
// Emits contact-added on success.
func (m *ContactManager) Add(contact *domain.Contact) bool {
	account := contact.Account()
	if account != nil {
		if own := m.OwnContact(account); own.Equal(contact) {
			return false
		}
	}

	m.mu.Lock()
	for _, existing := range m.contacts {
		if existing.Equal(contact) {
			m.mu.Unlock()
			return false
		}
	}
	m.contacts = append(m.contacts, contact)
	m.mu.Unlock()

	m.emitter.Emit(event.Event{Type: event.ContactAddedType, Payload: event.ContactAdded{Contact: contact}})
	return true
}

// Remove deletes a contact and emits contact-removed.
func (m *ContactManager) Remove(contact *domain.Contact) {
	m.mu.Lock()
	removed := false
	for i, existing := range m.contacts {
		if existing == contact {
			m.contacts = append(m.contacts[:i], m.contacts[i+1:]...)
			removed = true
			break
		}
	}
	m.mu.Unlock()

	if removed {
		m.emitter.Emit(event.Event{Type: event.ContactRemovedType, Payload: event.ContactRemoved{Contact: contact}})
		m.Store()
	}
}

// RemoveAccount purges every contact scoped to the account. Called
// when the account itself goes away.
func (m *ContactManager) RemoveAccount(account *domain.Account) {
	m.mu.Lock()
	kept := m.contacts[:0]
	var dropped []*domain.Contact
	for _, c := range m.contacts {
		if a := c.Account(); a != nil && a.Equal(account) {
			dropped = append(dropped, c)
			continue
		}
		kept = append(kept, c)
	}
	m.contacts = kept
	m.mu.Unlock()

	for _, c := range dropped {
		m.emitter.Emit(event.Event{Type: event.ContactRemovedType, Payload: event.ContactRemoved{Contact: c}})
	}
	if len(dropped) > 0 {
		m.Store()
	}
}

// Find returns the first contact with the given id, optionally
// constrained to one account (nil matches any).
func (m *ContactManager) Find(account *domain.Account, id string) *domain.Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contacts {
		if c.ID() != id {
			continue
		}
		if account == nil {
			return c
		}
		if a := c.Account(); a != nil && a.Equal(account) {
			return c
		}
	}
	return nil
}

// FindExtended adds the contact type to the match. Chat-room contacts
// reuse the roster id space, so lookups for them must not collide with
// roster entries.
func (m *ContactManager) FindExtended(account *domain.Account, typ domain.ContactType, id string) *domain.Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contacts {
		if c.Type != typ || c.ID() != id {
			continue
		}
		if account == nil {
			return c
		}
		if a := c.Account(); a != nil && a.Equal(account) {
			return c
		}
	}
	return nil
}

// FindOrCreate returns the existing match or constructs, registers,
// and persists a new contact. The returned bool reports creation.
func (m *ContactManager) FindOrCreate(account *domain.Account, typ domain.ContactType, id string) (*domain.Contact, bool) {
	var existing *domain.Contact
	if typ == domain.ContactChatroom {
		existing = m.FindExtended(account, typ, id)
	} else {
		existing = m.Find(account, id)
	}
	if existing != nil {
		return existing, false
	}

	contact := domain.NewContact(account, typ, id)
	m.Add(contact)
	m.Store()
	return contact, true
}

// OwnContact returns the contact representing the local user within an
// account, creating it on first call. The new contact is inserted
// directly into the table: going through Add would trip its
// self-rejection check and recurse forever.
func (m *ContactManager) OwnContact(account *domain.Account) *domain.Contact {
	if existing := m.FindExtended(account, domain.ContactUser, account.ID); existing != nil {
		return existing
	}

	own := domain.NewContact(account, domain.ContactUser, account.ID)
	m.mu.Lock()
	m.contacts = append(m.contacts, own)
	m.mu.Unlock()
	return own
}

func (m *ContactManager) All() []*domain.Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Contact, len(m.contacts))
	copy(out, m.contacts)
	return out
}

// Store schedules a debounced write: each call restarts a one-second
// delay and only the last call within the window hits the disk.
// Callers must not assume synchronous persistence.
func (m *ContactManager) Store() {
	m.saver.Schedule()
}

// Flush forces any pending debounced write out now.
func (m *ContactManager) Flush() {
	m.saver.Flush()
}

// StoreNow writes the cache immediately. Only ContactList and
// Temporary contacts are persisted; chatroom contacts are transient
// and the self name is recorded under its account's <self> element.
func (m *ContactManager) StoreNow() error {
	m.mu.RLock()
	contacts := make([]*domain.Contact, len(m.contacts))
	copy(contacts, m.contacts)
	m.mu.RUnlock()

	byAccount := make(map[string]*storage.ContactAccountXML)
	entryFor := func(account *domain.Account) *storage.ContactAccountXML {
		if e, ok := byAccount[account.Name]; ok {
			return e
		}
		e := &storage.ContactAccountXML{Name: account.Name}
		byAccount[account.Name] = e
		return e
	}

	for _, c := range contacts {
		account := c.Account()
		if account == nil {
			continue
		}
		switch c.Type {
		case domain.ContactUser:
			entryFor(account).Self = storage.SelfXML{Name: c.RawName()}
		case domain.ContactList, domain.ContactTemporary:
			e := entryFor(account)
			e.Contacts = append(e.Contacts, storage.ContactXML{ID: c.ID(), Name: c.RawName()})
		}
	}

	entries := make([]storage.ContactAccountXML, 0, len(byAccount))
	for _, account := range m.accounts.All() {
		if e, ok := byAccount[account.Name]; ok {
			entries = append(entries, *e)
		}
	}
	return storage.SaveContacts(m.path, entries)
}
