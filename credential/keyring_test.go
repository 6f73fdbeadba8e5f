package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useArrayKeyring(t *testing.T, items ...keyring.Item) {
	t.Helper()
	ring := keyring.NewArrayKeyring(items)
	prev := open
	open = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { open = prev })
}

func TestSetGetDelete(t *testing.T) {
	useArrayKeyring(t)

	require.NoError(t, Set(OpenAIKey, "sk-test"))
	got, err := Get(OpenAIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", got)

	require.NoError(t, Delete(OpenAIKey))
	_, err = Get(OpenAIKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupPrefersEnv(t *testing.T) {
	useArrayKeyring(t, keyring.Item{Key: OpenAIKey, Data: []byte("from-keyring")})
	t.Setenv(OpenAIKeyEnv, "from-env")

	got, err := Lookup(OpenAIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestLookupFallsBackToKeyring(t *testing.T) {
	useArrayKeyring(t, keyring.Item{Key: IMAPPassword, Data: []byte("hunter2")})
	t.Setenv(IMAPPasswordEnv, "")

	got, err := Lookup(IMAPPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestLookupMissing(t *testing.T) {
	useArrayKeyring(t, keyring.Item{Key: OpenAIKey, Data: nil})
	t.Setenv(OpenAIKeyEnv, "")

	_, err := Lookup(OpenAIKey)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Lookup("other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenFailure(t *testing.T) {
	prev := open
	open = func() (keyring.Keyring, error) { return nil, errors.New("no backend") }
	t.Cleanup(func() { open = prev })

	_, err := Get(OpenAIKey)
	assert.EqualError(t, err, "no backend")
	assert.Error(t, Set(OpenAIKey, "x"))
	assert.Error(t, Delete(OpenAIKey))
}

func TestEnvFor(t *testing.T) {
	assert.Equal(t, OpenAIKeyEnv, EnvFor(OpenAIKey))
	assert.Equal(t, IMAPPasswordEnv, EnvFor(IMAPPassword))
	assert.Empty(t, EnvFor("unknown"))
}

func TestFilePasswordFromEnv(t *testing.T) {
	t.Setenv(KeyringPasswordEnv, "correct horse")
	pw, err := filePassword("Password for tdraft keyring: ")
	require.NoError(t, err)
	assert.Equal(t, "correct horse", pw)
}

func TestFileBackendUsesPassphrase(t *testing.T) {
	cfg := keyringConfig()
	cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	cfg.FileDir = t.TempDir()

	t.Setenv(KeyringPasswordEnv, "first passphrase")
	ring, err := keyring.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, ring.Set(keyring.Item{Key: IMAPPassword, Data: []byte("s3cret")}))

	item, err := ring.Get(IMAPPassword)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(item.Data))

	// A different passphrase cannot decrypt the stored item.
	t.Setenv(KeyringPasswordEnv, "second passphrase")
	other, err := keyring.Open(cfg)
	require.NoError(t, err)
	_, err = other.Get(IMAPPassword)
	assert.Error(t, err)
}
