// Package cartstore holds the visitor's client-side cart: line items,
// derived totals and the drawer flag, written through to a StateStorage
// on every mutation.
package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/phenrril/storefront/internal/domain"
)

// KeyPrefix namespaces the persisted blob of a visitor cart.
const KeyPrefix = "cart-storage"

// Key returns the storage key of the cart owned by visitor.
func Key(visitor string) string { return fmt.Sprintf("%s:%s", KeyPrefix, visitor) }

// ItemInput is what callers hand to AddItem. Quantity is tracked by the store.
type ItemInput struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Slug  string          `json:"slug"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
}

// Snapshot is an immutable view of the store handed to listeners and handlers.
type Snapshot struct {
	Items      []domain.CartLineItem `json:"items"`
	IsOpen     bool                  `json:"isOpen"`
	TotalItems int                   `json:"totalItems"`
	TotalPrice decimal.Decimal       `json:"totalPrice"`
}

type persisted struct {
	State struct {
		Items []domain.CartLineItem `json:"items"`
	} `json:"state"`
	Version int `json:"version"`
}

type Store struct {
	mu        sync.Mutex
	key       string
	storage   domain.StateStorage
	timeout   time.Duration
	items     []domain.CartLineItem
	open      bool
	listeners map[int]func(Snapshot)
	nextSub   int
}

// New builds a store bound to key and hydrates it from storage. A missing
// blob yields an empty cart, and so does a corrupt one (with a warning).
func New(ctx context.Context, storage domain.StateStorage, key string) *Store {
	s := &Store{
		key:       key,
		storage:   storage,
		timeout:   2 * time.Second,
		items:     []domain.CartLineItem{},
		listeners: map[int]func(Snapshot){},
	}
	if err := s.hydrate(ctx); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cart store hydrate")
	}
	return s
}

func (s *Store) hydrate(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	raw, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptState, err)
	}
	items := make([]domain.CartLineItem, 0, len(p.State.Items))
	seen := map[string]int{}
	for _, it := range p.State.Items {
		if it.ID == "" || it.Quantity <= 0 {
			continue
		}
		if i, ok := seen[it.ID]; ok {
			items[i].Quantity += it.Quantity
			continue
		}
		seen[it.ID] = len(items)
		items = append(items, it)
	}
	s.items = items
	return nil
}

// AddItem increments the line for item.ID by quantity or appends a new
// line. A quantity below 1 counts as 1.
func (s *Store) AddItem(item ItemInput, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID == item.ID {
				s.items[i].Quantity += quantity
				return
			}
		}
		s.items = append(s.items, domain.CartLineItem{
			ID:       item.ID,
			Name:     item.Name,
			Slug:     item.Slug,
			Price:    item.Price,
			Image:    item.Image,
			Quantity: quantity,
		})
	})
}

// UpdateQuantity sets an absolute quantity; zero or less removes the line.
func (s *Store) UpdateQuantity(id string, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(id)
		return
	}
	s.mutate(func() {
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i].Quantity = quantity
				return
			}
		}
	})
}

func (s *Store) RemoveItem(id string) {
	s.mutate(func() {
		out := s.items[:0]
		for _, it := range s.items {
			if it.ID != id {
				out = append(out, it)
			}
		}
		s.items = out
	})
}

func (s *Store) Clear() {
	s.mutate(func() { s.items = []domain.CartLineItem{} })
}

func (s *Store) Toggle() { s.setOpen(func(o bool) bool { return !o }) }
func (s *Store) Open()   { s.setOpen(func(bool) bool { return true }) }
func (s *Store) Close()  { s.setOpen(func(bool) bool { return false }) }

func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Store) Items() []domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyItems()
}

func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPrice()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Subscribe registers fn to receive a snapshot after every change.
// The returned func removes it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// mutate applies fn and persists the item list under the lock so blobs
// reach storage in mutation order. Listeners run outside the lock.
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.persist(s.encode())
	snap := s.snapshot()
	listeners := s.listenerList()
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) setOpen(fn func(bool) bool) {
	s.mu.Lock()
	s.open = fn(s.open)
	snap := s.snapshot()
	listeners := s.listenerList()
	s.mu.Unlock()
	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) persist(payload []byte) {
	if s.storage == nil || payload == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.storage.Set(ctx, s.key, payload); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("cart store persist")
	}
}

func (s *Store) encode() []byte {
	var p persisted
	p.State.Items = s.copyItems()
	b, err := json.Marshal(p)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("cart store encode")
		return nil
	}
	return b
}

func (s *Store) snapshot() Snapshot {
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return Snapshot{Items: s.copyItems(), IsOpen: s.open, TotalItems: n, TotalPrice: s.totalPrice()}
}

func (s *Store) totalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (s *Store) copyItems() []domain.CartLineItem {
	out := make([]domain.CartLineItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) listenerList() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}
