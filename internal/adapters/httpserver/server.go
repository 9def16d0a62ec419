package httpserver

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/phenrril/storefront/internal/domain"
	"github.com/phenrril/storefront/internal/search"
	"github.com/phenrril/storefront/internal/session"
	"github.com/phenrril/storefront/internal/usecase"
)

const defaultRequestTimeout = 30 * time.Second

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Templates *template.Template
	Products  *usecase.ProductUC
	Cart      *usecase.CartActions
	CartSync  *usecase.CartSync
	Checkout  *usecase.CheckoutUC
	Auth      *usecase.AuthUC
	Contact   usecase.ContactUC
	Sessions  *session.Registry

	Search         search.Config
	BaseURL        string
	Secure         bool
	RequestTimeout time.Duration
}

type Server struct {
	router   chi.Router
	tmpl     *template.Template
	products *usecase.ProductUC
	cart     *usecase.CartActions
	sync     *usecase.CartSync
	checkout *usecase.CheckoutUC
	auth     *usecase.AuthUC
	contact  usecase.ContactUC
	sessions *session.Registry

	searchCfg search.Config
	baseURL   string
	secure    bool
	timeout   time.Duration
}

func New(d Deps) http.Handler {
	s := &Server{
		router:    chi.NewRouter(),
		tmpl:      d.Templates,
		products:  d.Products,
		cart:      d.Cart,
		sync:      d.CartSync,
		checkout:  d.Checkout,
		auth:      d.Auth,
		contact:   d.Contact,
		sessions:  d.Sessions,
		searchCfg: d.Search,
		baseURL:   strings.TrimRight(d.BaseURL, "/"),
		secure:    d.Secure,
		timeout:   d.RequestTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = defaultRequestTimeout
	}
	s.routes()
	return otelhttp.NewHandler(s.router, "storefront")
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.visitor)
	r.Use(withJar)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// the websocket outlives the request timeout and must not be compressed
	r.Get("/ws/search", s.wsSearch)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Use(middleware.Compress(5))

		r.Get("/", s.handleHome)
		r.Get("/products", s.handleProducts)
		r.Get("/products/{slug}", s.handleProduct)
		r.Get("/categories", s.handleCategories)
		r.Get("/categories/{slug}", s.handleCategory)
		r.Get("/cart", s.handleCart)
		r.Get("/cart/export.xlsx", s.handleCartExport)
		r.Get("/checkout", s.handleCheckout)
		r.Post("/checkout", s.handleCheckoutSubmit)
		r.Get("/login", s.handleLogin)
		r.Post("/login", s.handleLoginSubmit)
		r.Post("/logout", s.handleLogout)
		r.Get("/account", s.handleAccount)
		r.Get("/about", s.handleAbout)
		r.Get("/contact", s.handleContact)
		r.Post("/contact", s.handleContactSubmit)

		r.Route("/actions/cart", func(r chi.Router) {
			r.Get("/", s.actionGetCart)
			r.Post("/add", s.actionAdd)
			r.Post("/update", s.actionUpdate)
			r.Post("/remove", s.actionRemove)
			r.Post("/clear", s.actionClear)
			r.Get("/count", s.actionCount)
			r.Get("/total", s.actionTotal)
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/search", s.apiSearch)
			r.Get("/auth/profile", s.apiProfile)

			r.Route("/store", func(r chi.Router) {
				r.Get("/cart", s.apiStoreCart)
				r.Delete("/cart", s.apiStoreCartClear)
				r.Post("/cart/items", s.apiStoreCartAdd)
				r.Put("/cart/items/{id}", s.apiStoreCartUpdate)
				r.Delete("/cart/items/{id}", s.apiStoreCartRemove)
				r.Post("/cart/toggle", s.apiStoreCartToggle)
				r.Get("/ui", s.apiStoreUI)
				r.Post("/ui", s.apiStoreUIDispatch)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Page not found", "The page you are looking for does not exist.")
	})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	s.renderStatus(w, r, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, code int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	for k, v := range map[string]any{"Title": "", "Search": "", "CanonicalURL": "", "Error": "", "Notice": ""} {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}
	data["Year"] = time.Now().Year()
	if _, ok := data["User"]; !ok {
		data["User"] = s.optionalUser(r)
	}
	data["CartCount"] = domain.SummarizeCart(s.cart.Items(jarFrom(r))).ItemCount

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("tpl", name).Msg("render")
	}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, code int, heading, msg string) {
	s.renderStatus(w, r, code, "error.html", map[string]any{"Title": heading, "Heading": heading, "Message": msg})
}

// renderErr picks the error page for a use case failure.
func (s *Server) renderErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.renderError(w, r, http.StatusNotFound, "Not found", "We could not find what you were looking for.")
	case errors.As(err, new(*domain.ValidationError)):
		s.renderError(w, r, http.StatusBadRequest, "Bad request", err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		s.renderError(w, r, http.StatusBadGateway, "Something went wrong", "The catalog is unavailable right now. Please try again.")
	}
}

// optionalUser resolves the signed-in user for page chrome. Anonymous
// visitors never reach the auth API.
func (s *Server) optionalUser(r *http.Request) *domain.User {
	jar := jarFrom(r)
	_, hasAccess := jar.Cookie(usecase.AccessTokenCookie)
	_, hasRefresh := jar.Cookie(usecase.RefreshTokenCookie)
	if !hasAccess && !hasRefresh {
		return nil
	}
	u, err := s.auth.CurrentUser(r.Context(), jar)
	if err != nil {
		log.Debug().Err(err).Msg("page user lookup")
		return nil
	}
	return u
}

func (s *Server) canonical(r *http.Request) string {
	base := s.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.Path
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// wantsJSON reports whether the caller is a script rather than an HTML form.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "fetch") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
