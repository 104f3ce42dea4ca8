// Package managers owns the session's entity collections: accounts,
// contacts, and chat rooms. Each manager is the single authority over
// its entities; everything else holds non-owning references and
// re-resolves them here. All collections are mutex-guarded so protocol
// goroutines of different accounts can report concurrently.
package managers

import (
	"fmt"
	"log/slog"
	"sync"

	"im-session/contract"
	"im-session/domain"
	"im-session/domain/event"
	"im-session/storage"
)

// AccountManager persists and deduplicates Account entities and
// resolves the "default" account used when no account is specified.
type AccountManager struct {
	mu       sync.RWMutex
	log      *slog.Logger
	path     string
	secrets  contract.SecretStore
	emitter  *event.Emitter
	accounts []*domain.Account

	defaultName     string
	defaultOverride string
}

// NewAccountManager loads accounts.xml from path. A file that fails to
// parse or validate is treated as absent: the manager starts empty and
// logs the reason.
func NewAccountManager(log *slog.Logger, path string, secrets contract.SecretStore, emitter *event.Emitter) *AccountManager {
	m := &AccountManager{
		log:     log,
		path:    path,
		secrets: secrets,
		emitter: emitter,
	}

	accounts, defaultName, err := storage.LoadAccounts(path)
	if err != nil {
		log.Warn("Ignoring unreadable accounts file", "path", path, "error", err)
		return m
	}
	m.defaultName = defaultName
	for _, a := range accounts {
		// Prefer the external secret store over an inline password
		// element; the inline value remains a migration fallback.
		if secrets != nil {
			if pw, ok := secrets.Password(a.ID); ok && pw != "" {
				a.Password = pw
			}
		}
		m.accounts = append(m.accounts, a)
	}
	return m
}

// Add inserts an account. It fails silently, returning false, when an
// equal account (same name) is already present; otherwise the name is
// uniquified and the account appended. Emits account-added.
func (m *AccountManager) Add(account *domain.Account) bool {
	if err := account.Validate(); err != nil {
		m.log.Warn("Rejecting invalid account", "id", account.ID, "error", err)
		return false
	}

	m.mu.Lock()
	for _, existing := range m.accounts {
		if existing.Equal(account) {
			m.mu.Unlock()
			return false
		}
	}
	m.setUniqueNameLocked(account)
	m.accounts = append(m.accounts, account)
	m.mu.Unlock()

	m.emitter.Emit(event.Event{Type: event.AccountAddedType, Payload: event.AccountAdded{Account: account}})
	return true
}

// Remove deletes the account; the caller retains no further claim on
// it. Emits account-removed.
func (m *AccountManager) Remove(account *domain.Account) {
	m.mu.Lock()
	removed := false
	for i, existing := range m.accounts {
		if existing == account {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			removed = true
			break
		}
	}
	m.mu.Unlock()

	if removed {
		m.emitter.Emit(event.Event{Type: event.AccountRemovedType, Payload: event.AccountRemoved{Account: account}})
	}
}

func (m *AccountManager) Find(name string) *domain.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func (m *AccountManager) FindByID(id string) *domain.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m *AccountManager) All() []*domain.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Account, len(m.accounts))
	copy(out, m.accounts)
	return out
}

func (m *AccountManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// SetDefaultOverride sets the session-level default-account override.
// It takes precedence over the persisted default name and is never
// written to disk.
func (m *AccountManager) SetDefaultOverride(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultOverride = name
}

// Default resolves the default account: the session override if it
// resolves, else the persisted default name if it still resolves, else
// the first account — which is then persisted as the new default.
// That last step mutates state from a getter; kept as-is for
// behavioral compatibility (see DESIGN.md).
func (m *AccountManager) Default() *domain.Account {
	m.mu.RLock()
	override := m.defaultOverride
	persisted := m.defaultName
	m.mu.RUnlock()

	if override != "" {
		if a := m.Find(override); a != nil {
			return a
		}
	}
	if persisted != "" {
		if a := m.Find(persisted); a != nil {
			return a
		}
	}

	m.mu.RLock()
	var first *domain.Account
	if len(m.accounts) > 0 {
		first = m.accounts[0]
	}
	m.mu.RUnlock()

	if first != nil {
		m.SetDefault(first)
	}
	return first
}

// SetDefault records and persists the default account name.
func (m *AccountManager) SetDefault(account *domain.Account) {
	m.mu.Lock()
	m.defaultName = account.Name
	m.mu.Unlock()
	if err := m.Store(); err != nil {
		m.log.Warn("Failed to persist default account", "error", err)
	}
}

// Store serializes all accounts. Passwords are omitted from the file
// when an external secret store holds them.
func (m *AccountManager) Store() error {
	m.mu.RLock()
	accounts := make([]*domain.Account, len(m.accounts))
	copy(accounts, m.accounts)
	defaultName := m.defaultName
	m.mu.RUnlock()

	if m.secrets != nil {
		for _, a := range accounts {
			if a.Password == "" {
				continue
			}
			if err := m.secrets.SetPassword(a.ID, a.Password); err != nil {
				m.log.Warn("Failed to store credential", "account", a.Name, "error", err)
			}
		}
	}
	return storage.SaveAccounts(m.path, accounts, defaultName, m.secrets != nil)
}

// SetUniqueName rewrites the account's name until no other account in
// the manager shares it, appending underscores.
func (m *AccountManager) SetUniqueName(account *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setUniqueNameLocked(account)
}

func (m *AccountManager) setUniqueNameLocked(account *domain.Account) {
	if account.Name == "" {
		account.Name = account.ID
	}
	for m.nameTakenLocked(account) {
		account.Name = fmt.Sprintf("%s_", account.Name)
	}
}

func (m *AccountManager) nameTakenLocked(account *domain.Account) bool {
	for _, existing := range m.accounts {
		if existing != account && existing.Name == account.Name {
			return true
		}
	}
	return false
}
