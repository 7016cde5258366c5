// Package credential keeps store secrets out of the config file.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "slawatch"

// ErrNotFound is returned when no secret is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Vault reads and writes secrets in the OS keyring.
type Vault struct {
	cfg keyring.Config
}

// NewVault returns a Vault using the platform keyring, falling back to an
// encrypted file under the config directory.
func NewVault() *Vault {
	dir := "~/.config/slawatch/credentials"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", "slawatch", "credentials")
	}
	return &Vault{cfg: keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("slawatch-file-key"),
		KeychainTrustApplication: true,
	}}
}

// NewFileVault returns a Vault backed only by the encrypted file backend
// in dir, unlocked with password.
func NewFileVault(dir, password string) *Vault {
	return &Vault{cfg: keyring.Config{
		ServiceName:      serviceName,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          dir,
		FilePasswordFunc: keyring.FixedStringPrompt(password),
	}}
}

func (v *Vault) open() (keyring.Keyring, error) {
	ring, err := keyring.Open(v.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves the secret stored under key.
func (v *Vault) Get(key string) (string, error) {
	ring, err := v.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores value under key.
func (v *Vault) Set(key string, value string) error {
	ring, err := v.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "slawatch " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes the secret stored under key.
func (v *Vault) Delete(key string) error {
	ring, err := v.open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// StorePassword returns the password for the configured store, or "" when
// no key is configured.
func (v *Vault) StorePassword(key string) (string, error) {
	if key == "" {
		return "", nil
	}
	return v.Get(key)
}
