package httpserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/phenrril/storefront/internal/usecase"
)

// actionInput is the body of a cart server action, sent either as a form
// or as JSON.
type actionInput struct {
	ProductID json.Number `json:"productId"`
	Quantity  json.Number `json:"quantity"`
}

func readActionInput(r *http.Request) actionInput {
	var in actionInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		_ = dec.Decode(&in)
		return in
	}
	_ = r.ParseForm()
	return actionInput{
		ProductID: json.Number(r.FormValue("productId")),
		Quantity:  json.Number(r.FormValue("quantity")),
	}
}

// respond answers a cart action: JSON for scripts, a redirect back to the
// cart page for plain forms.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, res usecase.ActionResult) {
	if wantsJSON(r) {
		code := http.StatusOK
		if !res.Success {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, res)
		return
	}
	target := "/cart"
	if !res.Success {
		target += "?error=" + url.QueryEscape(res.Error)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) actionGetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cart.GetCart(r.Context(), jarFrom(r)))
}

func (s *Server) actionAdd(w http.ResponseWriter, r *http.Request) {
	in := readActionInput(r)
	s.respond(w, r, s.cart.AddToCart(r.Context(), jarFrom(r), in.ProductID.String(), in.Quantity.String()))
}

func (s *Server) actionUpdate(w http.ResponseWriter, r *http.Request) {
	in := readActionInput(r)
	s.respond(w, r, s.cart.UpdateCartItem(r.Context(), jarFrom(r), in.ProductID.String(), in.Quantity.String()))
}

func (s *Server) actionRemove(w http.ResponseWriter, r *http.Request) {
	in := readActionInput(r)
	s.respond(w, r, s.cart.RemoveFromCart(r.Context(), jarFrom(r), in.ProductID.String()))
}

func (s *Server) actionClear(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.cart.ClearCart(r.Context(), jarFrom(r)))
}

func (s *Server) actionCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cart.ItemCount(r.Context(), jarFrom(r)))
}

func (s *Server) actionTotal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cart.Total(r.Context(), jarFrom(r)))
}

func parseQuantity(n json.Number) (int, bool) {
	v, err := strconv.Atoi(n.String())
	return v, err == nil
}
