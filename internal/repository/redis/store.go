// Package redis implements shared storage on Redis under fixed keys.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository"
)

// Cmdable is the subset of go-redis commands the store uses.
// It is implemented by *redis.Client and by test fakes.
type Cmdable interface {
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
	MSet(ctx context.Context, values ...any) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

var (
	_ repository.CredentialRepository = (*Store)(nil)
	_ repository.SnapshotRepository   = (*Store)(nil)
)

// Store keeps the credential pair and cart snapshot under "blindbox:<profile>:<key>".
type Store struct {
	rdb         Cmdable
	prefix      string
	snapshotTTL time.Duration
}

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := goredis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// New wraps rdb. snapshotTTL of zero keeps the snapshot forever.
func New(rdb Cmdable, profile string, snapshotTTL time.Duration) *Store {
	return &Store{rdb: rdb, prefix: "blindbox:" + profile + ":", snapshotTTL: snapshotTTL}
}

func (s *Store) key(name string) string { return s.prefix + name }

// Get reads both tokens in one round trip.
func (s *Store) Get(ctx context.Context) (model.Tokens, error) {
	vals, err := s.rdb.MGet(ctx, s.key(repository.KeyAccessToken), s.key(repository.KeyRefreshToken)).Result()
	if err != nil {
		return model.Tokens{}, err
	}
	var t model.Tokens
	if len(vals) == 2 {
		t.AccessToken, _ = vals[0].(string)
		t.RefreshToken, _ = vals[1].(string)
	}
	return t, nil
}

// Save writes both tokens atomically.
func (s *Store) Save(ctx context.Context, t model.Tokens) error {
	return s.rdb.MSet(ctx,
		s.key(repository.KeyAccessToken), t.AccessToken,
		s.key(repository.KeyRefreshToken), t.RefreshToken,
	).Err()
}

// SetAccessToken overwrites the access token key only.
func (s *Store) SetAccessToken(ctx context.Context, access string) error {
	return s.rdb.Set(ctx, s.key(repository.KeyAccessToken), access, 0).Err()
}

// Clear deletes both token keys.
func (s *Store) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key(repository.KeyAccessToken), s.key(repository.KeyRefreshToken)).Err()
}

// LoadCart reads the snapshot or returns errs.ErrNotFound.
func (s *Store) LoadCart(ctx context.Context) (model.CartSnapshot, error) {
	data, err := s.rdb.Get(ctx, s.key(repository.KeyCartStorage)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.CartSnapshot{}, errs.ErrNotFound
	}
	if err != nil {
		return model.CartSnapshot{}, err
	}
	var snap model.CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.CartSnapshot{}, err
	}
	return snap, nil
}

// SaveCart writes the snapshot JSON with the configured TTL.
func (s *Store) SaveCart(ctx context.Context, snap model.CartSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(repository.KeyCartStorage), data, s.snapshotTTL).Err()
}

// DeleteCart deletes the snapshot key.
func (s *Store) DeleteCart(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key(repository.KeyCartStorage)).Err()
}
