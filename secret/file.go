package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/argon2"

	imerrors "im-session/errors"
)

const saltSize = 16

// File is an encrypted on-disk secret store: the password map is
// serialized and sealed with AES-256-GCM under a key derived from the
// passphrase with argon2id. The file is written atomically with
// owner-only permissions, like the rest of the session's data.
type File struct {
	path string

	mu        sync.Mutex
	salt      []byte
	key       []byte
	passwords map[string]string
}

// OpenFile loads (or initializes) the store at path. A wrong
// passphrase surfaces as ErrSecretLocked, not as corrupt data.
func OpenFile(path, passphrase string) (*File, error) {
	f := &File{path: path, passwords: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		f.salt = make([]byte, saltSize)
		if _, err := rand.Read(f.salt); err != nil {
			return nil, err
		}
		f.key = deriveKey(passphrase, f.salt)
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) < saltSize {
		return nil, fmt.Errorf("%w: truncated secret file", imerrors.ErrSecretLocked)
	}

	f.salt = data[:saltSize]
	f.key = deriveKey(passphrase, f.salt)
	plaintext, err := open(f.key, data[saltSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", imerrors.ErrSecretLocked, err)
	}
	if err := json.Unmarshal(plaintext, &f.passwords); err != nil {
		return nil, fmt.Errorf("%w: %v", imerrors.ErrSecretLocked, err)
	}
	return f, nil
}

func (f *File) Password(accountID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pw, ok := f.passwords[accountID]
	return pw, ok
}

func (f *File) SetPassword(accountID, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords[accountID] = password
	return f.persistLocked()
}

func (f *File) DeletePassword(accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.passwords, accountID)
	return f.persistLocked()
}

func (f *File) persistLocked() error {
	plaintext, err := json.Marshal(f.passwords)
	if err != nil {
		return err
	}
	sealed, err := seal(f.key, plaintext)
	if err != nil {
		return err
	}
	out := append(append([]byte{}, f.salt...), sealed...)

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed blob too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
