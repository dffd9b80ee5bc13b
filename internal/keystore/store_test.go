package keystore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestEnvStore(t *testing.T) {
	ctx := context.Background()
	s := NewEnvStore("env-key")

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "env-key" {
		t.Errorf("Read() = %q, want %q", got, "env-key")
	}

	if err := s.Write(ctx, "other"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write() error = %v, want ErrReadOnly", err)
	}
}

func TestEnvStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewEnvStore("k").Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "key")
	s := NewFileStore(path)

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() on missing file error = %v", err)
	}
	if got != "" {
		t.Errorf("Read() on missing file = %q, want empty", got)
	}

	if err := s.Write(ctx, "file-key"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	got, err = s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "file-key" {
		t.Errorf("Read() = %q, want %q", got, "file-key")
	}

	if err := s.Write(ctx, ""); err != nil {
		t.Fatalf("Write(\"\") error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("key file should be removed, Stat() error = %v", err)
	}

	// Clearing twice is fine.
	if err := s.Write(ctx, ""); err != nil {
		t.Errorf("second clear error = %v", err)
	}
}

func TestFileStore_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  spaced-key \n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(path).Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "spaced-key" {
		t.Errorf("Read() = %q, want %q", got, "spaced-key")
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	ctx := context.Background()
	s := NewKeyringStore(DefaultKeyringService, DefaultKeyringUser)

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() on empty keyring error = %v", err)
	}
	if got != "" {
		t.Errorf("Read() on empty keyring = %q, want empty", got)
	}

	if err := s.Write(ctx, "keyring-key"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err = s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "keyring-key" {
		t.Errorf("Read() = %q, want %q", got, "keyring-key")
	}

	if err := s.Write(ctx, ""); err != nil {
		t.Fatalf("Write(\"\") error = %v", err)
	}
	if err := s.Write(ctx, ""); err != nil {
		t.Errorf("clearing an empty keyring error = %v", err)
	}
	got, _ = s.Read(ctx)
	if got != "" {
		t.Errorf("Read() after clear = %q, want empty", got)
	}
}
