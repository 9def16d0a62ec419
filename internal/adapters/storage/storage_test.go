package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenrril/storefront/internal/domain"
)

var (
	_ domain.StateStorage = (*Memory)(nil)
	_ domain.StateStorage = (*Redis)(nil)
)

func backends(t *testing.T) map[string]domain.StateStorage {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return map[string]domain.StateStorage{
		"memory": NewMemory(),
		"redis":  NewRedis(client, 0),
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "cart-storage:v1")
			assert.ErrorIs(t, err, domain.ErrNotFound)

			require.NoError(t, s.Set(ctx, "cart-storage:v1", []byte(`{"items":[]}`)))
			got, err := s.Get(ctx, "cart-storage:v1")
			require.NoError(t, err)
			assert.Equal(t, `{"items":[]}`, string(got))

			require.NoError(t, s.Set(ctx, "cart-storage:v1", []byte(`{}`)))
			got, err = s.Get(ctx, "cart-storage:v1")
			require.NoError(t, err)
			assert.Equal(t, `{}`, string(got))

			require.NoError(t, s.Delete(ctx, "cart-storage:v1"))
			_, err = s.Get(ctx, "cart-storage:v1")
			assert.ErrorIs(t, err, domain.ErrNotFound)

			assert.NoError(t, s.Delete(ctx, "never-set"))
		})
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf))
	buf[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRedis_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedis(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ui-store:v1", []byte("{}")))
	assert.True(t, mr.Exists("state:ui-store:v1"))
	assert.Equal(t, time.Hour, mr.TTL("state:ui-store:v1"))

	mr.FastForward(2 * time.Hour)
	_, err := s.Get(ctx, "ui-store:v1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
