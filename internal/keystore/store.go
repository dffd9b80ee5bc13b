package keystore

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by Write on stores that cannot be modified.
var ErrReadOnly = errors.New("key store is read-only")

// Store reads and writes a single API key.
type Store interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, key string) error
}

// EnvStore serves a fixed key from configuration.
type EnvStore struct {
	key string
}

// Compile-time check that EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates a read-only store holding key.
func NewEnvStore(key string) *EnvStore {
	return &EnvStore{key: key}
}

// Read returns the configured key.
func (s *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.key, nil
}

// Write always fails; configuration is not writable at runtime.
func (s *EnvStore) Write(context.Context, string) error {
	return ErrReadOnly
}
