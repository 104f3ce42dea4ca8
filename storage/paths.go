// Package storage owns the on-disk representation of the session:
// the per-user data directory and the XML documents the managers
// persist. A file that fails to parse or fails schema validation is
// reported as an error; callers treat it as absent and start empty.
package storage

import (
	"os"
	"path/filepath"
)

const (
	AccountsFile  = "accounts.xml"
	ContactsFile  = "contacts.xml"
	ChatroomsFile = "chatrooms.xml"
)

// DefaultDataDir resolves the per-user application data directory and
// creates it owner-only if missing. Account and contact files contain
// credentials and social graphs; nobody else on the machine gets them.
func DefaultDataDir(appName string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, appName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
