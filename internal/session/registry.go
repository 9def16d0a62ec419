// Package session owns the per-visitor client stores. Stores are built on
// first use, hydrated from storage, and dropped from memory after an idle
// period; their persisted state stays in storage.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/cartstore"
	"github.com/phenrril/storefront/internal/domain"
	"github.com/phenrril/storefront/internal/uistore"
)

// Session bundles the stores of one visitor.
type Session struct {
	Visitor string
	Cart    *cartstore.Store
	UI      *uistore.Store
}

type entry struct {
	sess     *Session
	lastSeen time.Time
}

type Registry struct {
	mu      sync.Mutex
	storage domain.StateStorage
	idleTTL time.Duration
	entries map[string]*entry
	now     func() time.Time
}

func NewRegistry(storage domain.StateStorage, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Registry{
		storage: storage,
		idleTTL: idleTTL,
		entries: map[string]*entry{},
		now:     time.Now,
	}
}

// Get returns the session of visitor, creating it when needed. Stores are
// hydrated outside the registry lock; when two first requests race, the
// session inserted first wins.
func (r *Registry) Get(ctx context.Context, visitor string) *Session {
	if s := r.lookup(visitor); s != nil {
		return s
	}
	built := &Session{
		Visitor: visitor,
		Cart:    cartstore.New(ctx, r.storage, cartstore.Key(visitor)),
		UI:      uistore.New(ctx, r.storage, uistore.Key(visitor)),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[visitor]; ok {
		e.lastSeen = r.now()
		return e.sess
	}
	r.entries[visitor] = &entry{sess: built, lastSeen: r.now()}
	return built
}

func (r *Registry) lookup(visitor string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[visitor]
	if !ok {
		return nil
	}
	e.lastSeen = r.now()
	return e.sess
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Evict drops sessions idle for longer than the TTL and reports how many went.
func (r *Registry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.idleTTL)
	n := 0
	for k, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, k)
			n++
		}
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Evict(); n > 0 {
				log.Debug().Int("evicted", n).Int("active", r.Len()).Msg("session janitor")
			}
		}
	}
}
