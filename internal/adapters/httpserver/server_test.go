package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/phenrril/storefront/internal/adapters/cache"
	"github.com/phenrril/storefront/internal/adapters/storage"
	"github.com/phenrril/storefront/internal/domain"
	"github.com/phenrril/storefront/internal/search"
	"github.com/phenrril/storefront/internal/session"
	"github.com/phenrril/storefront/internal/usecase"
	"github.com/phenrril/storefront/internal/views"
)

var gadgets = domain.Category{ID: 2, Name: "Gadgets", Slug: "gadgets"}

type fakeCatalog struct {
	products []domain.Product
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: []domain.Product{
		{ID: 1, Title: "Blue Widget", Slug: "blue-widget", Price: decimal.RequireFromString("10.50"), Images: []string{"https://img.test/1.png"}, Category: gadgets},
		{ID: 2, Title: "Red Widget", Slug: "red-widget", Price: decimal.RequireFromString("20"), Images: []string{"https://img.test/2.png"}, Category: gadgets},
	}}
}

func (f *fakeCatalog) ListProducts(_ context.Context, pf domain.ProductFilter) ([]domain.Product, error) {
	if pf.Title == "" {
		return f.products, nil
	}
	return f.SearchProducts(context.Background(), pf.Title)
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int) (*domain.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, &domain.UpstreamError{Op: "get product", StatusCode: http.StatusNotFound}
}

func (f *fakeCatalog) GetProductBySlug(_ context.Context, slug string) (*domain.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			p := p
			return &p, nil
		}
	}
	return nil, &domain.UpstreamError{Op: "get product by slug", StatusCode: http.StatusNotFound}
}

func (f *fakeCatalog) SearchProducts(_ context.Context, q string) ([]domain.Product, error) {
	out := []domain.Product{}
	for _, p := range f.products {
		if strings.Contains(strings.ToLower(p.Title), strings.ToLower(q)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListCategories(context.Context) ([]domain.Category, error) {
	return []domain.Category{gadgets}, nil
}

func (f *fakeCatalog) GetCategory(_ context.Context, id int) (*domain.Category, error) {
	if id == gadgets.ID {
		c := gadgets
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCatalog) GetCategoryBySlug(_ context.Context, slug string) (*domain.Category, error) {
	if slug == gadgets.Slug {
		c := gadgets
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCatalog) ProductsByCategory(_ context.Context, id int) ([]domain.Product, error) {
	if id == gadgets.ID {
		return f.products, nil
	}
	return []domain.Product{}, nil
}

type fakeAuth struct{}

func (fakeAuth) Login(_ context.Context, c domain.Credentials) (*domain.AuthTokens, error) {
	if c.Password != "secret" {
		return nil, &domain.UpstreamError{Op: "login", StatusCode: http.StatusUnauthorized}
	}
	return &domain.AuthTokens{AccessToken: "acc", RefreshToken: "ref"}, nil
}

func (fakeAuth) Profile(_ context.Context, token string) (*domain.User, error) {
	if token != "acc" {
		return nil, &domain.UpstreamError{Op: "profile", StatusCode: http.StatusUnauthorized}
	}
	return &domain.User{ID: 7, Email: "ana@example.com", Name: "Ana", Role: "customer"}, nil
}

func (fakeAuth) RefreshToken(context.Context, string) (*domain.AuthTokens, error) {
	return nil, &domain.UpstreamError{Op: "refresh", StatusCode: http.StatusUnauthorized}
}

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	tmpl, err := views.Parse()
	require.NoError(t, err)

	catalog := newFakeCatalog()
	respCache := cache.NewMemoryCache()
	actions := &usecase.CartActions{Catalog: catalog}
	h := New(Deps{
		Templates: tmpl,
		Products:  &usecase.ProductUC{Catalog: catalog, Cache: respCache},
		Cart:      actions,
		CartSync:  &usecase.CartSync{Actions: actions},
		Checkout:  &usecase.CheckoutUC{Cart: actions},
		Auth:      &usecase.AuthUC{API: fakeAuth{}},
		Sessions:  session.NewRegistry(storage.NewMemory(), time.Minute),
		Search:    search.Config{Debounce: 10 * time.Millisecond},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return srv, client
}

func doJSON(t *testing.T, c *http.Client, method, u string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, u, rd)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func cookieValue(c *http.Client, base, name string) string {
	u, _ := url.Parse(base)
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func TestHealthzAndVisitorCookie(t *testing.T) {
	srv, c := newTestServer(t)

	resp, body := doJSON(t, c, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	id := cookieValue(c, srv.URL, VisitorCookie)
	require.NotEmpty(t, id)

	resp, _ = doJSON(t, c, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Empty(t, resp.Cookies(), "a valid visitor cookie is kept")
	assert.Equal(t, id, cookieValue(c, srv.URL, VisitorCookie))
}

func TestCartActions_JSON(t *testing.T) {
	srv, c := newTestServer(t)

	resp, body := doJSON(t, c, http.MethodPost, srv.URL+"/actions/cart/add", map[string]any{"productId": 1, "quantity": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, cookieValue(c, srv.URL, usecase.CartCookieName))

	_, body = doJSON(t, c, http.MethodPost, srv.URL+"/actions/cart/add", map[string]any{"productId": "1", "quantity": "1"})
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(3), data["itemCount"])
	assert.Equal(t, "31.5", data["total"])

	_, body = doJSON(t, c, http.MethodGet, srv.URL+"/actions/cart/count", nil)
	assert.Equal(t, float64(3), body["data"])

	_, body = doJSON(t, c, http.MethodPost, srv.URL+"/actions/cart/update", map[string]any{"productId": 1, "quantity": 0})
	assert.Equal(t, float64(0), body["data"].(map[string]any)["itemCount"])

	resp, body = doJSON(t, c, http.MethodPost, srv.URL+"/actions/cart/update", map[string]any{"productId": 1, "quantity": 2})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Item not found in cart", body["error"])
}

func TestCartActions_UnknownProduct(t *testing.T) {
	srv, c := newTestServer(t)

	resp, body := doJSON(t, c, http.MethodPost, srv.URL+"/actions/cart/add", map[string]any{"productId": 99})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Product not found", body["error"])
}

func TestCartActions_FormRedirects(t *testing.T) {
	srv, c := newTestServer(t)

	resp, err := c.PostForm(srv.URL+"/actions/cart/add", url.Values{"productId": {"2"}, "quantity": {"1"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/cart", resp.Header.Get("Location"))

	resp, err = c.PostForm(srv.URL+"/actions/cart/add", url.Values{"productId": {"abc"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "/cart?error=")

	resp, err = c.Get(srv.URL + "/cart")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "Red Widget")
	assert.Contains(t, buf.String(), "Cart (1)")
}

func TestStoreAPI_CartSync(t *testing.T) {
	srv, c := newTestServer(t)

	resp, body := doJSON(t, c, http.MethodPost, srv.URL+"/api/store/cart/items", map[string]any{
		"id": "1", "name": "Blue Widget", "slug": "blue-widget", "price": "10.50", "quantity": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cart := body["cart"].(map[string]any)
	assert.Equal(t, float64(2), cart["totalItems"])
	assert.Equal(t, true, body["server"].(map[string]any)["success"])

	_, body = doJSON(t, c, http.MethodGet, srv.URL+"/api/store/cart", nil)
	assert.Equal(t, "21", body["totalPrice"])

	_, body = doJSON(t, c, http.MethodPost, srv.URL+"/api/store/cart/toggle", nil)
	assert.Equal(t, true, body["isOpen"])

	_, body = doJSON(t, c, http.MethodPut, srv.URL+"/api/store/cart/items/1", map[string]any{"quantity": 5})
	assert.Equal(t, float64(5), body["cart"].(map[string]any)["totalItems"])

	_, body = doJSON(t, c, http.MethodGet, srv.URL+"/actions/cart/count", nil)
	assert.Equal(t, float64(5), body["data"], "cookie mirror follows the store")

	_, body = doJSON(t, c, http.MethodDelete, srv.URL+"/api/store/cart", nil)
	assert.Equal(t, float64(0), body["cart"].(map[string]any)["totalItems"])
}

func TestStoreAPI_MirrorFailureKeepsOptimisticState(t *testing.T) {
	srv, c := newTestServer(t)

	resp, body := doJSON(t, c, http.MethodPost, srv.URL+"/api/store/cart/items", map[string]any{
		"id": "42", "name": "Ghost", "price": "1", "quantity": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Product not found", body["error"])
	assert.Equal(t, float64(1), body["cart"].(map[string]any)["totalItems"])
}

func TestStoreAPI_BadInput(t *testing.T) {
	srv, c := newTestServer(t)

	resp, _ := doJSON(t, c, http.MethodPost, srv.URL+"/api/store/cart/items", map[string]any{"name": "no id"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, c, http.MethodPut, srv.URL+"/api/store/cart/items/1", map[string]any{"quantity": "many"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStoreAPI_UIDispatch(t *testing.T) {
	srv, c := newTestServer(t)

	_, body := doJSON(t, c, http.MethodGet, srv.URL+"/api/store/ui", nil)
	assert.Equal(t, "grid", body["viewMode"])

	_, body = doJSON(t, c, http.MethodPost, srv.URL+"/api/store/ui", map[string]any{"action": "toggleViewMode"})
	assert.Equal(t, "list", body["viewMode"])

	_, body = doJSON(t, c, http.MethodPost, srv.URL+"/api/store/ui", map[string]any{"action": "openModal", "key": "quick-view"})
	assert.Equal(t, true, body["modals"].(map[string]any)["quick-view"])

	resp, body := doJSON(t, c, http.MethodPost, srv.URL+"/api/store/ui", map[string]any{"action": "fly"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "unknown action")
}

func TestPages(t *testing.T) {
	srv, c := newTestServer(t)

	cases := []struct {
		path string
		code int
		want string
	}{
		{"/", http.StatusOK, "Featured"},
		{"/products?search=red", http.StatusOK, "Red Widget"},
		{"/products/blue-widget", http.StatusOK, "Blue Widget"},
		{"/products/widget-2", http.StatusOK, "Red Widget"},
		{"/products/1", http.StatusOK, "Blue Widget"},
		{"/products/nothing-here", http.StatusNotFound, "Not found"},
		{"/categories", http.StatusOK, "Gadgets"},
		{"/categories/gadgets", http.StatusOK, "Blue Widget"},
		{"/about", http.StatusOK, "About us"},
		{"/contact", http.StatusOK, "Contact"},
		{"/login", http.StatusOK, "Log in"},
		{"/checkout", http.StatusOK, "Your cart is empty"},
		{"/no/such/page", http.StatusNotFound, "Page not found"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := c.Get(srv.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(resp.Body)
			assert.Equal(t, tc.code, resp.StatusCode)
			assert.Contains(t, buf.String(), tc.want)
		})
	}
}

func TestAccountRedirectsAnonymous(t *testing.T) {
	srv, c := newTestServer(t)

	resp, err := c.Get(srv.URL + "/account")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=/account", resp.Header.Get("Location"))
}

func TestLoginAndProfile(t *testing.T) {
	srv, c := newTestServer(t)

	resp, body := doJSON(t, c, http.MethodGet, srv.URL+"/api/auth/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "not authenticated", body["error"])

	resp, err := c.PostForm(srv.URL+"/login", url.Values{"email": {"ana@example.com"}, "password": {"nope"}})
	require.NoError(t, err)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, buf.String(), "Incorrect email or password")

	resp, err = c.PostForm(srv.URL+"/login", url.Values{"email": {"ana@example.com"}, "password": {"secret"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))
	assert.Equal(t, "acc", cookieValue(c, srv.URL, usecase.AccessTokenCookie))

	resp, body = doJSON(t, c, http.MethodGet, srv.URL+"/api/auth/profile", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ana", body["name"])

	resp, err = c.Post(srv.URL+"/logout", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, cookieValue(c, srv.URL, usecase.AccessTokenCookie))
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/account"},
		{"/cart", "/cart"},
		{"/products?search=red+cap", "/products?search=red+cap"},
		{"https://evil.example", "/account"},
		{"//evil.example", "/account"},
		{"/\\evil.example", "/account"},
		{"/\t/evil.example", "/account"},
		{"evil.example", "/account"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeNext(tt.next), "next=%q", tt.next)
	}
}

func TestLoginRedirectStaysOnSite(t *testing.T) {
	srv, c := newTestServer(t)

	resp, err := c.PostForm(srv.URL+"/login", url.Values{
		"email":    {"ana@example.com"},
		"password": {"secret"},
		"next":     {"/\\evil.example"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))
}

func TestCheckout(t *testing.T) {
	srv, c := newTestServer(t)
	form := url.Values{
		"email": {"ana@example.com"}, "firstName": {"Ana"}, "lastName": {"Silva"},
		"address": {"Main Street 100"}, "city": {"Springfield"}, "state": {"SP"},
		"zipCode": {"12345-000"}, "phone": {"11999998888"}, "paymentMethod": {"pix"},
	}

	post := func(v url.Values) (*http.Response, map[string]any) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/checkout", strings.NewReader(v.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		resp, err := c.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		out := map[string]any{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp, out
	}

	resp, body := post(form)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Your cart is empty", body["error"])

	bad := url.Values{"email": {"nope"}}
	resp, body = post(bad)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["fields"], "email")

	doJSON(t, c, http.MethodPost, srv.URL+"/actions/cart/add", map[string]any{"productId": 2, "quantity": 1})

	resp, body = post(form)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conf := body["data"].(map[string]any)
	assert.Len(t, conf["orderNumber"], 8)
	quote := conf["quote"].(map[string]any)
	assert.Equal(t, "15.99", quote["shipping"])
	assert.Equal(t, "1.6", quote["tax"])

	_, body = doJSON(t, c, http.MethodGet, srv.URL+"/actions/cart/count", nil)
	assert.Equal(t, float64(0), body["data"])
}

func TestContactForm(t *testing.T) {
	srv, c := newTestServer(t)

	resp, err := c.PostForm(srv.URL+"/contact", url.Values{"name": {"A"}, "email": {"x"}, "subject": {"Hi"}, "message": {"short"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = c.PostForm(srv.URL+"/contact", url.Values{
		"name": {"Ana"}, "email": {"ana@example.com"}, "subject": {"Order question"}, "message": {"Where is my package?"},
	})
	require.NoError(t, err)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "Your message was received")
}

func TestCartExport(t *testing.T) {
	srv, c := newTestServer(t)
	doJSON(t, c, http.MethodPost, srv.URL+"/actions/cart/add", map[string]any{"productId": 1, "quantity": 3})

	resp, err := c.Get(srv.URL + "/cart/export.xlsx")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue(cartSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Blue Widget", title)
	qty, err := f.GetCellValue(cartSheet, "D2")
	require.NoError(t, err)
	assert.Equal(t, "3", qty)
}

func TestAPISearch(t *testing.T) {
	srv, c := newTestServer(t)

	_, body := doJSON(t, c, http.MethodGet, srv.URL+"/api/search?q=wi", nil)
	assert.Empty(t, body["options"])

	_, body = doJSON(t, c, http.MethodGet, srv.URL+"/api/search?q=widget", nil)
	opts := body["options"].([]any)
	require.Len(t, opts, 2)
	assert.Equal(t, "blue-widget", opts[0].(map[string]any)["value"])
}

func TestWSSearch(t *testing.T) {
	srv, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/search"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() wsOutbound {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m wsOutbound
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	first := read()
	require.Equal(t, "state", first.Type)
	assert.Equal(t, search.StatusIdle, first.State.Status)

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "input", Value: "red"}))
	var results *search.State
	for results == nil {
		m := read()
		if m.Type == "state" && m.State.Status == search.StatusResults {
			results = m.State
		}
	}
	require.Len(t, results.Options, 1)
	assert.Equal(t, "red-widget", results.Options[0].Value)

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "select", Index: 5}))
	assert.Equal(t, "error", read().Type)

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "select", Index: 0}))
	var nav string
	for nav == "" {
		if m := read(); m.Type == "navigate" {
			nav = m.Path
		}
	}
	assert.Equal(t, "/products/red-widget", nav)
}
