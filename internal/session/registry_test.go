package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenrril/storefront/internal/adapters/storage"
	"github.com/phenrril/storefront/internal/cartstore"
)

func TestRegistry_IsolatesVisitors(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), time.Minute)
	ctx := context.Background()

	a := r.Get(ctx, "a")
	b := r.Get(ctx, "b")
	a.Cart.AddItem(cartstore.ItemInput{ID: "1", Price: decimal.NewFromInt(2)}, 1)

	assert.Equal(t, 1, a.Cart.TotalItems())
	assert.Equal(t, 0, b.Cart.TotalItems())
	assert.Same(t, a, r.Get(ctx, "a"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_EvictKeepsPersistedState(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	s := r.Get(ctx, "a")
	s.Cart.AddItem(cartstore.ItemInput{ID: "1", Price: decimal.NewFromInt(2)}, 3)
	require.NoError(t, s.UI.SetViewMode("list"))
	r.Get(ctx, "b")

	now = now.Add(45 * time.Second)
	r.Get(ctx, "b")
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, r.Evict())
	assert.Equal(t, 1, r.Len())

	again := r.Get(ctx, "a")
	assert.NotSame(t, s, again)
	assert.Equal(t, 3, again.Cart.TotalItems())
	assert.Equal(t, "list", string(again.UI.State().ViewMode))
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), time.Millisecond)
	r.Get(context.Background(), "a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

// gatedStorage blocks reads of keys containing "slow" until release closes.
type gatedStorage struct {
	*storage.Memory
	release chan struct{}
}

func (g *gatedStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if strings.Contains(key, "slow") {
		<-g.release
	}
	return g.Memory.Get(ctx, key)
}

func TestRegistry_HydrationDoesNotBlockOtherVisitors(t *testing.T) {
	st := &gatedStorage{Memory: storage.NewMemory(), release: make(chan struct{})}
	r := NewRegistry(st, time.Minute)
	ctx := context.Background()

	slow := make(chan *Session, 1)
	go func() { slow <- r.Get(ctx, "slow") }()

	fast := make(chan *Session, 1)
	go func() { fast <- r.Get(ctx, "fast") }()
	select {
	case s := <-fast:
		assert.Equal(t, "fast", s.Visitor)
	case <-time.After(time.Second):
		t.Fatal("new visitor waited on another visitor's hydration")
	}

	close(st.release)
	assert.Equal(t, "slow", (<-slow).Visitor)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ConcurrentFirstGetSharesSession(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Session, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Get(ctx, "a")
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, r.Len())
}
