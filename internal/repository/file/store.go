// Package file implements local-device storage: credentials sealed at rest and
// the cart snapshot as JSON, both under a per-user config directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/and161185/blindbox/internal/crypto"
	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository"
)

const (
	keyFile         = "storage.key"
	credentialsFile = "credentials.bin"
	snapshotFile    = repository.KeyCartStorage + ".json"

	credentialsPurpose = "credentials"
)

var (
	_ repository.CredentialRepository = (*Store)(nil)
	_ repository.SnapshotRepository   = (*Store)(nil)
)

// Store keeps state in files under dir. Safe for concurrent use within one process.
type Store struct {
	dir string
	mu  sync.Mutex
}

// DefaultDir returns $XDG_CONFIG_HOME/blindbox or ~/.config/blindbox.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "blindbox")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "blindbox")
}

// New returns a store rooted at dir; the directory is created lazily.
func New(dir string) *Store { return &Store{dir: dir} }

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// Get returns the stored pair or zero Tokens when none is stored.
func (s *Store) Get(_ context.Context) (model.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTokens()
}

// Save seals and writes both tokens.
func (s *Store) Save(_ context.Context, t model.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeTokens(t)
}

// SetAccessToken replaces the access token, keeping the stored refresh token.
func (s *Store) SetAccessToken(_ context.Context, access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.readTokens()
	if err != nil {
		return err
	}
	t.AccessToken = access
	return s.writeTokens(t)
}

// Clear removes the credentials file. The master key is kept.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeIfExists(s.path(credentialsFile))
}

// LoadCart reads the snapshot or returns errs.ErrNotFound.
func (s *Store) LoadCart(_ context.Context) (model.CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path(snapshotFile))
	if errors.Is(err, fs.ErrNotExist) {
		return model.CartSnapshot{}, errs.ErrNotFound
	}
	if err != nil {
		return model.CartSnapshot{}, err
	}
	var snap model.CartSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return model.CartSnapshot{}, fmt.Errorf("decode %s: %w", snapshotFile, err)
	}
	return snap, nil
}

// SaveCart writes the snapshot atomically.
func (s *Store) SaveCart(_ context.Context, snap model.CartSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return s.writeAtomic(snapshotFile, b)
}

// DeleteCart removes the snapshot.
func (s *Store) DeleteCart(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeIfExists(s.path(snapshotFile))
}

// ---- internals (callers hold mu) ----

func (s *Store) readTokens() (model.Tokens, error) {
	sealed, err := os.ReadFile(s.path(credentialsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return model.Tokens{}, nil
	}
	if err != nil {
		return model.Tokens{}, err
	}
	key, err := s.sealingKey(false)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("storage key: %w", err)
	}
	plain, err := crypto.Open(key, []byte(credentialsPurpose), sealed)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("open credentials: %w", err)
	}
	var t model.Tokens
	if err := json.Unmarshal(plain, &t); err != nil {
		return model.Tokens{}, fmt.Errorf("decode credentials: %w", err)
	}
	return t, nil
}

func (s *Store) writeTokens(t model.Tokens) error {
	key, err := s.sealingKey(true)
	if err != nil {
		return fmt.Errorf("storage key: %w", err)
	}
	plain, err := json.Marshal(t)
	if err != nil {
		return err
	}
	sealed, err := crypto.Seal(key, []byte(credentialsPurpose), plain)
	if err != nil {
		return err
	}
	return s.writeAtomic(credentialsFile, sealed)
}

// sealingKey loads the master key (creating it when create is set) and derives
// the credentials key from it.
func (s *Store) sealingKey(create bool) ([]byte, error) {
	master, err := os.ReadFile(s.path(keyFile))
	if errors.Is(err, fs.ErrNotExist) && create {
		if master, err = crypto.RandBytes(crypto.KeyLen); err != nil {
			return nil, err
		}
		err = s.writeAtomic(keyFile, master)
	}
	if err != nil {
		return nil, err
	}
	if len(master) != crypto.KeyLen {
		return nil, fmt.Errorf("bad key length %d", len(master))
	}
	return crypto.DeriveKey(master, credentialsPurpose)
}

func (s *Store) writeAtomic(name string, b []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(name))
}

func removeIfExists(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
