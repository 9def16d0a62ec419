// Package uistore keeps ephemeral UI flags for one visitor. Only the view
// mode and the product filters survive a restart.
package uistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/domain"
)

const KeyPrefix = "ui-store"

func Key(visitor string) string { return fmt.Sprintf("%s:%s", KeyPrefix, visitor) }

type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

type AuthMode string

const (
	AuthLogin    AuthMode = "login"
	AuthRegister AuthMode = "register"
)

type State struct {
	CartOpen        bool                 `json:"cartOpen"`
	SearchQuery     string               `json:"searchQuery"`
	Filters         domain.ProductFilter `json:"filters"`
	Loading         bool                 `json:"loading"`
	ProductsLoading bool                 `json:"productsLoading"`
	CartLoading     bool                 `json:"cartLoading"`
	LoadingKeys     map[string]bool      `json:"loadingKeys"`
	Error           string               `json:"error,omitempty"`
	AuthModalOpen   bool                 `json:"authModalOpen"`
	AuthModalMode   AuthMode             `json:"authModalMode"`
	ViewMode        ViewMode             `json:"viewMode"`
	SidebarOpen     bool                 `json:"sidebarOpen"`
	Modals          map[string]bool      `json:"modals"`
}

func initialState() State {
	return State{
		AuthModalMode: AuthLogin,
		ViewMode:      ViewGrid,
		LoadingKeys:   map[string]bool{},
		Modals:        map[string]bool{},
	}
}

type persisted struct {
	State struct {
		ViewMode ViewMode             `json:"viewMode"`
		Filters  domain.ProductFilter `json:"filters"`
	} `json:"state"`
	Version int `json:"version"`
}

type Store struct {
	mu      sync.Mutex
	key     string
	storage domain.StateStorage
	st      State
}

func New(ctx context.Context, storage domain.StateStorage, key string) *Store {
	s := &Store{key: key, storage: storage, st: initialState()}
	if err := s.hydrate(ctx); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("ui store hydrate")
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
	if p.State.ViewMode == ViewList {
		s.st.ViewMode = ViewList
	}
	s.st.Filters = p.State.Filters
	return nil
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) OpenCart()   { s.update(false, func(st *State) { st.CartOpen = true }) }
func (s *Store) CloseCart()  { s.update(false, func(st *State) { st.CartOpen = false }) }
func (s *Store) ToggleCart() { s.update(false, func(st *State) { st.CartOpen = !st.CartOpen }) }

func (s *Store) SetSearchQuery(q string) { s.update(false, func(st *State) { st.SearchQuery = q }) }
func (s *Store) ClearSearch()            { s.update(false, func(st *State) { st.SearchQuery = "" }) }

// SetFilters merges the non-zero fields of f into the current filters.
func (s *Store) SetFilters(f domain.ProductFilter) {
	s.update(true, func(st *State) {
		if f.Title != "" {
			st.Filters.Title = f.Title
		}
		if f.PriceMin != nil {
			st.Filters.PriceMin = f.PriceMin
		}
		if f.PriceMax != nil {
			st.Filters.PriceMax = f.PriceMax
		}
		if f.CategoryID != 0 {
			st.Filters.CategoryID = f.CategoryID
		}
		if f.Offset != 0 {
			st.Filters.Offset = f.Offset
		}
		if f.Limit != 0 {
			st.Filters.Limit = f.Limit
		}
	})
}

// UpdateFilter replaces a single filter field. An empty or unparsable
// value resets it.
func (s *Store) UpdateFilter(key, value string) error {
	parsed := domain.ParseProductFilter(url.Values{key: {value}})
	var apply func(f *domain.ProductFilter)
	switch key {
	case "title":
		apply = func(f *domain.ProductFilter) { f.Title = parsed.Title }
	case "price_min":
		apply = func(f *domain.ProductFilter) { f.PriceMin = parsed.PriceMin }
	case "price_max":
		apply = func(f *domain.ProductFilter) { f.PriceMax = parsed.PriceMax }
	case "categoryId":
		apply = func(f *domain.ProductFilter) { f.CategoryID = parsed.CategoryID }
	case "offset":
		apply = func(f *domain.ProductFilter) { f.Offset = parsed.Offset }
	case "limit":
		apply = func(f *domain.ProductFilter) { f.Limit = parsed.Limit }
	default:
		return domain.NewValidationError(key, "unknown filter")
	}
	s.update(true, func(st *State) { apply(&st.Filters) })
	return nil
}

func (s *Store) ClearFilters() { s.update(true, func(st *State) { st.Filters = domain.ProductFilter{} }) }

func (s *Store) SetLoading(v bool)         { s.update(false, func(st *State) { st.Loading = v }) }
func (s *Store) SetProductsLoading(v bool) { s.update(false, func(st *State) { st.ProductsLoading = v }) }
func (s *Store) SetCartLoading(v bool)     { s.update(false, func(st *State) { st.CartLoading = v }) }

// SetLoadingKey tracks a named loading flag; false drops the key.
func (s *Store) SetLoadingKey(key string, v bool) {
	s.update(false, func(st *State) {
		if v {
			st.LoadingKeys[key] = true
		} else {
			delete(st.LoadingKeys, key)
		}
	})
}

func (s *Store) SetError(msg string) { s.update(false, func(st *State) { st.Error = msg }) }
func (s *Store) ClearError()         { s.update(false, func(st *State) { st.Error = "" }) }

// OpenAuthModal opens the auth modal; an empty mode means login.
func (s *Store) OpenAuthModal(mode AuthMode) {
	if mode != AuthRegister {
		mode = AuthLogin
	}
	s.update(false, func(st *State) {
		st.AuthModalOpen = true
		st.AuthModalMode = mode
	})
}

func (s *Store) CloseAuthModal() { s.update(false, func(st *State) { st.AuthModalOpen = false }) }

func (s *Store) SetAuthModalMode(mode AuthMode) error {
	if mode != AuthLogin && mode != AuthRegister {
		return domain.NewValidationError("mode", "must be login or register")
	}
	s.update(false, func(st *State) { st.AuthModalMode = mode })
	return nil
}

func (s *Store) SetViewMode(mode ViewMode) error {
	if mode != ViewGrid && mode != ViewList {
		return domain.NewValidationError("viewMode", "must be grid or list")
	}
	s.update(true, func(st *State) { st.ViewMode = mode })
	return nil
}

func (s *Store) ToggleViewMode() {
	s.update(true, func(st *State) {
		if st.ViewMode == ViewGrid {
			st.ViewMode = ViewList
		} else {
			st.ViewMode = ViewGrid
		}
	})
}

func (s *Store) OpenSidebar()   { s.update(false, func(st *State) { st.SidebarOpen = true }) }
func (s *Store) CloseSidebar()  { s.update(false, func(st *State) { st.SidebarOpen = false }) }
func (s *Store) ToggleSidebar() { s.update(false, func(st *State) { st.SidebarOpen = !st.SidebarOpen }) }

func (s *Store) OpenModal(name string)  { s.update(false, func(st *State) { st.Modals[name] = true }) }
func (s *Store) CloseModal(name string) { s.update(false, func(st *State) { delete(st.Modals, name) }) }
func (s *Store) ToggleModal(name string) {
	s.update(false, func(st *State) {
		if st.Modals[name] {
			delete(st.Modals, name)
		} else {
			st.Modals[name] = true
		}
	})
}
func (s *Store) CloseAllModals() { s.update(false, func(st *State) { st.Modals = map[string]bool{} }) }

// Reset restores the initial state, persisted fields included.
func (s *Store) Reset() { s.update(true, func(st *State) { *st = initialState() }) }

func (s *Store) update(persist bool, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
	if persist {
		s.persistLocked()
	}
}

func (s *Store) persistLocked() {
	if s.storage == nil {
		return
	}
	var p persisted
	p.State.ViewMode = s.st.ViewMode
	p.State.Filters = s.st.Filters
	b, err := json.Marshal(p)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("ui store encode")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.storage.Set(ctx, s.key, b); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("ui store persist")
	}
}

func (s *Store) copyLocked() State {
	out := s.st
	out.LoadingKeys = make(map[string]bool, len(s.st.LoadingKeys))
	for k, v := range s.st.LoadingKeys {
		out.LoadingKeys[k] = v
	}
	out.Modals = make(map[string]bool, len(s.st.Modals))
	for k, v := range s.st.Modals {
		out.Modals[k] = v
	}
	return out
}
