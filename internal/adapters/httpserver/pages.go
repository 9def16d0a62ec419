package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/domain"
	"github.com/phenrril/storefront/internal/usecase"
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	featured, err := s.products.Featured(r.Context(), 0)
	if err != nil {
		log.Warn().Err(err).Msg("home: featured products")
		featured = []domain.Product{}
	}
	cats, err := s.products.Categories(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("home: categories")
	}
	if len(cats) > 6 {
		cats = cats[:6]
	}
	s.render(w, r, "home.html", map[string]any{
		"Products":     featured,
		"Categories":   cats,
		"CanonicalURL": s.canonical(r),
	})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := domain.ParseProductFilter(r.URL.Query()).WithDefaults()
	sess := s.session(r)
	sess.UI.ClearFilters()
	sess.UI.SetFilters(f)
	sess.UI.SetSearchQuery(f.Title)

	sess.UI.SetProductsLoading(true)
	list, err := s.products.List(ctx, f)
	sess.UI.SetProductsLoading(false)
	if err != nil {
		sess.UI.SetError(err.Error())
		s.renderErr(w, r, err)
		return
	}
	sess.UI.ClearError()

	cats, cerr := s.products.Categories(ctx)
	if cerr != nil {
		log.Warn().Err(cerr).Msg("products: categories")
	}

	var prev, next url.Values
	if f.Offset > 0 {
		p := f
		p.Offset -= f.Limit
		if p.Offset < 0 {
			p.Offset = 0
		}
		prev = p.Query()
	}
	if len(list) == f.Limit {
		n := f
		n.Offset += f.Limit
		next = n.Query()
	}

	data := map[string]any{
		"Title":        "Products",
		"Products":     list,
		"Categories":   cats,
		"Search":       f.Title,
		"CategoryID":   f.CategoryID,
		"PriceMin":     "",
		"PriceMax":     "",
		"ViewMode":     string(sess.UI.State().ViewMode),
		"Prev":         prev,
		"Next":         next,
		"CanonicalURL": s.canonical(r),
	}
	if f.PriceMin != nil {
		data["PriceMin"] = f.PriceMin.String()
	}
	if f.PriceMax != nil {
		data["PriceMax"] = f.PriceMax.String()
	}
	s.render(w, r, "products.html", data)
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	related, err := s.products.FeaturedByCategory(r.Context(), p.Category.ID, 0)
	if err != nil {
		log.Warn().Err(err).Int("category_id", p.Category.ID).Msg("product: related")
	}
	out := related[:0]
	for _, rp := range related {
		if rp.ID != p.ID {
			out = append(out, rp)
		}
	}
	s.render(w, r, "product.html", map[string]any{
		"Title":        p.Title,
		"Product":      p,
		"Related":      out,
		"CanonicalURL": s.canonical(r),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.products.Categories(r.Context())
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	s.render(w, r, "categories.html", map[string]any{"Title": "Categories", "Categories": cats, "CanonicalURL": s.canonical(r)})
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.products.CategoryBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	list, err := s.products.ProductsByCategory(r.Context(), c.ID)
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	featured, err := s.products.FeaturedByCategory(r.Context(), c.ID, 0)
	if err != nil {
		log.Warn().Err(err).Int("category_id", c.ID).Msg("category: featured")
	}
	s.render(w, r, "category.html", map[string]any{
		"Title":        c.Name,
		"Category":     c,
		"Products":     list,
		"Featured":     featured,
		"CanonicalURL": s.canonical(r),
	})
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	items := s.cart.Items(jarFrom(r))
	suggestions, err := s.products.CartSuggestions(r.Context(), items)
	if err != nil {
		log.Warn().Err(err).Msg("cart: suggestions")
	}
	s.render(w, r, "cart.html", map[string]any{
		"Title":       "Cart",
		"Cart":        domain.SummarizeCart(items),
		"Suggestions": suggestions,
		"Error":       r.URL.Query().Get("error"),
	})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "checkout.html", map[string]any{
		"Title":  "Checkout",
		"Quote":  s.checkout.Quote(jarFrom(r)),
		"Form":   usecase.CheckoutForm{PaymentMethod: "card"},
		"Errors": usecase.FieldErrors{},
	})
}

func (s *Server) handleCheckoutSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "The form could not be read.")
		return
	}
	form := usecase.CheckoutForm{
		Email:         r.PostFormValue("email"),
		FirstName:     r.PostFormValue("firstName"),
		LastName:      r.PostFormValue("lastName"),
		Address:       r.PostFormValue("address"),
		City:          r.PostFormValue("city"),
		State:         r.PostFormValue("state"),
		ZipCode:       r.PostFormValue("zipCode"),
		Phone:         r.PostFormValue("phone"),
		PaymentMethod: r.PostFormValue("paymentMethod"),
		Notes:         r.PostFormValue("notes"),
	}
	jar := jarFrom(r)
	conf, err := s.checkout.PlaceOrder(r.Context(), jar, s.session(r).Cart, form)
	if err != nil {
		data := map[string]any{
			"Title":  "Checkout",
			"Quote":  s.checkout.Quote(jar),
			"Form":   form,
			"Errors": usecase.FieldErrors{},
		}
		var fe usecase.FieldErrors
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &fe):
			data["Errors"] = fe
			data["Error"] = "Please fix the highlighted fields."
		case errors.As(err, &ve):
			data["Error"] = ve.Message
		default:
			data["Error"] = "Could not place the order. Please try again."
		}
		if wantsJSON(r) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "error": data["Error"], "fields": data["Errors"]})
			return
		}
		s.renderStatus(w, r, http.StatusUnprocessableEntity, "checkout.html", data)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": conf})
		return
	}
	s.render(w, r, "checkout.html", map[string]any{"Title": "Order placed", "Confirmation": conf, "Quote": conf.Quote})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "login.html", map[string]any{"Title": "Log in", "Email": "", "Next": safeNext(r.URL.Query().Get("next"))})
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "The form could not be read.")
		return
	}
	email := r.PostFormValue("email")
	res := s.auth.Login(r.Context(), jarFrom(r), email, r.PostFormValue("password"))
	if wantsJSON(r) {
		code := http.StatusOK
		if !res.Success {
			code = http.StatusUnauthorized
		}
		writeJSON(w, code, res)
		return
	}
	if !res.Success {
		s.renderStatus(w, r, http.StatusUnauthorized, "login.html", map[string]any{
			"Title": "Log in",
			"Error": res.Error,
			"Email": email,
			"Next":  safeNext(r.PostFormValue("next")),
			"User":  (*domain.User)(nil),
		})
		return
	}
	http.Redirect(w, r, safeNext(r.PostFormValue("next")), http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout(jarFrom(r))
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.CurrentUser(r.Context(), jarFrom(r))
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthorized) {
			log.Warn().Err(err).Msg("account: current user")
		}
		http.Redirect(w, r, "/login?next=/account", http.StatusSeeOther)
		return
	}
	s.render(w, r, "account.html", map[string]any{"Title": "My account", "User": u})
}

// apiProfile is the JSON view of the signed-in user.
func (s *Server) apiProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.CurrentUser(r.Context(), jarFrom(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, u)
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	default:
		log.Warn().Err(err).Msg("api profile")
		writeError(w, http.StatusBadGateway, "authentication service unavailable")
	}
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "about.html", map[string]any{"Title": "About", "CanonicalURL": s.canonical(r)})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "contact.html", map[string]any{"Title": "Contact", "Form": usecase.ContactForm{}, "Errors": usecase.FieldErrors{}})
}

func (s *Server) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "The form could not be read.")
		return
	}
	form := usecase.ContactForm{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Subject: r.PostFormValue("subject"),
		Message: r.PostFormValue("message"),
	}
	ticket, err := s.contact.Submit(form)
	if err != nil {
		fe := usecase.FieldErrors{}
		errors.As(err, &fe)
		s.renderStatus(w, r, http.StatusUnprocessableEntity, "contact.html", map[string]any{
			"Title":  "Contact",
			"Form":   form,
			"Errors": fe,
			"Error":  "Please fix the highlighted fields.",
		})
		return
	}
	s.render(w, r, "contact.html", map[string]any{
		"Title":  "Contact",
		"Form":   usecase.ContactForm{},
		"Errors": usecase.FieldErrors{},
		"Notice": "Thanks! Your message was received (ticket " + ticket[:8] + ").",
	})
}

// safeNext keeps post-login redirects on this site. Browsers treat a
// leading "//" or "/\" as another host.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/account"
	}
	u, err := url.Parse(strings.ReplaceAll(next, "\\", "/"))
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/account"
	}
	return next
}
