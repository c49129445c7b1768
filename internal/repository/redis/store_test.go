package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
)

// fakeRedis is an in-memory Cmdable returning go-redis result objects.
type fakeRedis struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

var _ Cmdable = (*fakeRedis)(nil)

func newFake() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) MGet(_ context.Context, keys ...string) *goredis.SliceCmd {
	if f.err != nil {
		return goredis.NewSliceResult(nil, f.err)
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			out[i] = v
		}
	}
	return goredis.NewSliceResult(out, nil)
}

func (f *fakeRedis) MSet(_ context.Context, values ...any) *goredis.StatusCmd {
	if f.err != nil {
		return goredis.NewStatusResult("", f.err)
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.data[values[i].(string)] = values[i+1].(string)
	}
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, exp time.Duration) *goredis.StatusCmd {
	if f.err != nil {
		return goredis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	f.ttl[key] = exp
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func TestStore_CredentialsUnderFixedKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFake()
	s := New(f, "web", 0)

	got, err := s.Get(ctx)
	require.NoError(t, err)
	require.True(t, got.Empty())

	require.NoError(t, s.Save(ctx, model.Tokens{AccessToken: "acc", RefreshToken: "ref"}))
	require.Equal(t, "acc", f.data["blindbox:web:accessToken"])
	require.Equal(t, "ref", f.data["blindbox:web:refreshToken"])

	require.NoError(t, s.SetAccessToken(ctx, "acc2"))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, model.Tokens{AccessToken: "acc2", RefreshToken: "ref"}, got)

	require.NoError(t, s.Clear(ctx))
	require.Empty(t, f.data)
}

func TestStore_SnapshotTTLAndMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFake()
	s := New(f, "web", 24*time.Hour)

	_, err := s.LoadCart(ctx)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.SaveCart(ctx, model.CartSnapshot{Version: 1, Cart: &model.Cart{Items: []model.CartItem{{Product: model.Product{ID: "p1"}, CartQuantity: 3}}}}))
	require.Equal(t, 24*time.Hour, f.ttl["blindbox:web:cart-storage"])

	snap, err := s.LoadCart(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, snap.Cart.Items[0].CartQuantity)

	require.NoError(t, s.DeleteCart(ctx))
	_, err = s.LoadCart(ctx)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStore_ErrorsPropagate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFake()
	f.err = errors.New("connection refused")
	s := New(f, "web", 0)

	_, err := s.Get(ctx)
	require.Error(t, err)
	require.Error(t, s.Save(ctx, model.Tokens{AccessToken: "a"}))
	require.Error(t, s.Clear(ctx))
	_, err = s.LoadCart(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}
