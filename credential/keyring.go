// Package credential stores secrets in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "tdraft"

// Well-known credential keys and the environment variables that override them.
const (
	OpenAIKey       = "openai-api-key"
	OpenAIKeyEnv    = "OPENAI_API_KEY"
	IMAPPassword    = "imap-password"
	IMAPPasswordEnv = "TDRAFT_IMAP_PASSWORD"

	// KeyringPasswordEnv unlocks the encrypted file backend without a prompt.
	KeyringPasswordEnv = "TDRAFT_KEYRING_PASSWORD"
)

// ErrNotFound is returned when neither the environment nor the keyring holds
// the credential.
var ErrNotFound = errors.New("credential not found")

// EnvFor returns the override variable for a well-known key, or "".
func EnvFor(key string) string {
	switch key {
	case OpenAIKey:
		return OpenAIKeyEnv
	case IMAPPassword:
		return IMAPPasswordEnv
	}
	return ""
}

// open is replaced in tests.
var open = openKeyring

func keyringConfig() keyring.Config {
	return keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/tdraft/credentials",
		FilePasswordFunc:         filePassword,
		KeychainTrustApplication: true,
	}
}

// filePassword supplies the passphrase for the file backend, asking on the
// terminal when KeyringPasswordEnv is unset.
func filePassword(prompt string) (string, error) {
	if v := os.Getenv(KeyringPasswordEnv); v != "" {
		return v, nil
	}
	return keyring.TerminalPrompt(prompt)
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyringConfig())
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Lookup returns the key's value from its override variable if set, falling
// back to the keyring. An empty stored value counts as missing.
func Lookup(key string) (string, error) {
	if env := EnvFor(key); env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	v, err := Get(key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	return v, nil
}
