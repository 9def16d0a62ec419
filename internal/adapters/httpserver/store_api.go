package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/phenrril/storefront/internal/cartstore"
	"github.com/phenrril/storefront/internal/domain"
	"github.com/phenrril/storefront/internal/uistore"
	"github.com/phenrril/storefront/internal/usecase"
)

type addItemRequest struct {
	cartstore.ItemInput
	Quantity int `json:"quantity"`
}

type updateItemRequest struct {
	Quantity json.Number `json:"quantity"`
}

func (s *Server) apiStoreCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(r).Cart.Snapshot())
}

func (s *Server) apiStoreCartAdd(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must not be negative")
		return
	}
	s.writeSync(w, s.sync.AddItem(r.Context(), s.session(r).Cart, jarFrom(r), req.ItemInput, req.Quantity))
}

func (s *Server) apiStoreCartUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	qty, ok := parseQuantity(req.Quantity)
	if !ok {
		writeError(w, http.StatusBadRequest, "quantity must be a whole number")
		return
	}
	s.writeSync(w, s.sync.UpdateQuantity(r.Context(), s.session(r).Cart, jarFrom(r), chi.URLParam(r, "id"), qty))
}

func (s *Server) apiStoreCartRemove(w http.ResponseWriter, r *http.Request) {
	s.writeSync(w, s.sync.RemoveItem(r.Context(), s.session(r).Cart, jarFrom(r), chi.URLParam(r, "id")))
}

func (s *Server) apiStoreCartClear(w http.ResponseWriter, r *http.Request) {
	s.writeSync(w, s.sync.Clear(r.Context(), s.session(r).Cart, jarFrom(r)))
}

func (s *Server) apiStoreCartToggle(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	sess.Cart.Toggle()
	if sess.Cart.IsOpen() {
		sess.UI.OpenCart()
	} else {
		sess.UI.CloseCart()
	}
	writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

// writeSync reports a mirrored mutation. The client state is already applied
// when the cookie mirror fails, so the failure still carries the cart.
func (s *Server) writeSync(w http.ResponseWriter, res usecase.SyncResult) {
	code := http.StatusOK
	if !res.OK() {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, res)
}

func (s *Server) apiStoreUI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(r).UI.State())
}

func (s *Server) apiStoreUIDispatch(w http.ResponseWriter, r *http.Request) {
	var a uistore.Action
	jsonBody := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	if jsonBody {
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		_ = r.ParseForm()
		a = uistore.Action{Type: r.FormValue("action"), Key: r.FormValue("key"), Value: r.FormValue("value")}
	}

	ui := s.session(r).UI
	err := ui.Dispatch(a)
	if !jsonBody && !wantsJSON(r) {
		back := r.Referer()
		if back == "" {
			back = "/products"
		}
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ui.State())
}
