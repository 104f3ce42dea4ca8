package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	imerrors "im-session/errors"
)

func Test_File_Store_Round_Trip(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "secrets.bin")

	store, err := OpenFile(path, "correct horse battery staple")
	req.NoError(err)

	req.NoError(store.SetPassword("alice@example.org", "hunter2"))
	pw, ok := store.Password("alice@example.org")
	req.True(ok)
	req.Equal("hunter2", pw)

	// Fresh open with the same passphrase sees the credential.
	reopened, err := OpenFile(path, "correct horse battery staple")
	req.NoError(err)
	pw, ok = reopened.Password("alice@example.org")
	req.True(ok)
	req.Equal("hunter2", pw)

	req.NoError(reopened.DeletePassword("alice@example.org"))
	_, ok = reopened.Password("alice@example.org")
	req.False(ok)
}

func Test_Wrong_Passphrase_Is_Locked_Not_Garbage(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "secrets.bin")

	store, err := OpenFile(path, "right")
	req.NoError(err)
	req.NoError(store.SetPassword("alice@example.org", "hunter2"))

	_, err = OpenFile(path, "wrong")
	req.ErrorIs(err, imerrors.ErrSecretLocked)
}

func Test_Passwords_Never_Hit_Disk_In_Plaintext(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "secrets.bin")

	store, err := OpenFile(path, "passphrase")
	req.NoError(err)
	req.NoError(store.SetPassword("alice@example.org", "hunter2"))

	data, err := os.ReadFile(path)
	req.NoError(err)
	req.NotContains(string(data), "hunter2")
	req.NotContains(string(data), "alice@example.org")

	info, err := os.Stat(path)
	req.NoError(err)
	req.Equal(os.FileMode(0o600), info.Mode().Perm())
}

func Test_Truncated_Secret_File_Is_Locked(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "secrets.bin")
	req.NoError(os.WriteFile(path, []byte("short"), 0o600))

	_, err := OpenFile(path, "whatever")
	req.ErrorIs(err, imerrors.ErrSecretLocked)
}
