package uistore

import (
	"strconv"

	"github.com/phenrril/storefront/internal/domain"
)

// Action is one UI store mutation sent by the browser.
type Action struct {
	Type  string `json:"action"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// Dispatch applies a to the store.
func (s *Store) Dispatch(a Action) error {
	switch a.Type {
	case "openCart":
		s.OpenCart()
	case "closeCart":
		s.CloseCart()
	case "toggleCart":
		s.ToggleCart()
	case "setSearchQuery":
		s.SetSearchQuery(a.Value)
	case "clearSearch":
		s.ClearSearch()
	case "updateFilter":
		return s.UpdateFilter(a.Key, a.Value)
	case "clearFilters":
		s.ClearFilters()
	case "setLoading", "setProductsLoading", "setCartLoading":
		v, err := strconv.ParseBool(a.Value)
		if err != nil {
			return domain.NewValidationError("value", "must be a boolean")
		}
		switch a.Type {
		case "setLoading":
			s.SetLoading(v)
		case "setProductsLoading":
			s.SetProductsLoading(v)
		default:
			s.SetCartLoading(v)
		}
	case "setLoadingKey":
		v, err := strconv.ParseBool(a.Value)
		if err != nil || a.Key == "" {
			return domain.NewValidationError("key", "key and boolean value required")
		}
		s.SetLoadingKey(a.Key, v)
	case "setError":
		s.SetError(a.Value)
	case "clearError":
		s.ClearError()
	case "openAuthModal":
		s.OpenAuthModal(AuthMode(a.Value))
	case "closeAuthModal":
		s.CloseAuthModal()
	case "setAuthModalMode":
		return s.SetAuthModalMode(AuthMode(a.Value))
	case "setViewMode":
		return s.SetViewMode(ViewMode(a.Value))
	case "toggleViewMode":
		s.ToggleViewMode()
	case "openSidebar":
		s.OpenSidebar()
	case "closeSidebar":
		s.CloseSidebar()
	case "toggleSidebar":
		s.ToggleSidebar()
	case "openModal", "closeModal", "toggleModal":
		if a.Key == "" {
			return domain.NewValidationError("key", "modal name required")
		}
		switch a.Type {
		case "openModal":
			s.OpenModal(a.Key)
		case "closeModal":
			s.CloseModal(a.Key)
		default:
			s.ToggleModal(a.Key)
		}
	case "closeAllModals":
		s.CloseAllModals()
	case "reset":
		s.Reset()
	default:
		return domain.NewValidationError("action", "unknown action "+strconv.Quote(a.Type))
	}
	return nil
}
