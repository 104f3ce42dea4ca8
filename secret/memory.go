// Package secret holds the credential collaborators. When one is
// wired in, account passwords never reach accounts.xml; the XML loader
// still reads an inline password element as a migration fallback.
package secret

import "sync"

// Memory is an in-process secret store: useful for tests and for
// hosts that keep credentials only for the lifetime of the session.
type Memory struct {
	mu        sync.RWMutex
	passwords map[string]string
}

func NewMemory() *Memory {
	return &Memory{passwords: make(map[string]string)}
}

func (m *Memory) Password(accountID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pw, ok := m.passwords[accountID]
	return pw, ok
}

func (m *Memory) SetPassword(accountID, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwords[accountID] = password
	return nil
}

func (m *Memory) DeletePassword(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.passwords, accountID)
	return nil
}
