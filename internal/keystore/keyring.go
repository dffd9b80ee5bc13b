package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring defaults.
const (
	DefaultKeyringService = "solar-proxy"
	DefaultKeyringUser    = "upstage-api-key"
)

// KeyringStore keeps the key in the operating system's keyring.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check that KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a store for the given keyring service and user.
func NewKeyringStore(service, user string) *KeyringStore {
	return &KeyringStore{service: service, user: user}
}

// Read returns the stored key, or "" if the keyring has no entry.
func (s *KeyringStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading keyring entry: %w", err)
	}
	return key, nil
}

// Write replaces the stored key. An empty key deletes the entry.
func (s *KeyringStore) Write(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		if err := keyring.Delete(s.service, s.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("deleting keyring entry: %w", err)
		}
		return nil
	}

	if err := keyring.Set(s.service, s.user, key); err != nil {
		return fmt.Errorf("writing keyring entry: %w", err)
	}
	return nil
}
