package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/domain"
)

const (
	CartCookieName = "shopping-cart"
	CartCookieTTL  = 30 * 24 * time.Hour
	// CartTag marks cached views derived from the cookie cart.
	CartTag = "cart"

	maxCartQuantity = 99
	// browsers drop cookies past roughly 4KB
	maxCartCookieBytes = 4000
)

// CookieJar exposes request cookies and response cookie writes. A cookie
// set during a request must be visible to later reads of the same request.
type CookieJar interface {
	Cookie(name string) (string, bool)
	SetCookie(c *http.Cookie)
}

// TagInvalidator drops cached responses by tag.
type TagInvalidator interface {
	Invalidate(ctx context.Context, tag string) error
}

// ActionResult is the envelope every cart action answers with.
type ActionResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func succeed(data any) ActionResult { return ActionResult{Success: true, Data: data} }
func fail(msg string) ActionResult { return ActionResult{Success: false, Error: msg} }

// CartActions mirrors the cart into the shopping-cart cookie so server
// rendered pages can read it. Every operation converts its errors into a
// failed ActionResult.
type CartActions struct {
	Catalog domain.Catalog
	Cache   TagInvalidator
	Secure  bool
}

func (a *CartActions) GetCart(_ context.Context, jar CookieJar) ActionResult {
	return succeed(domain.SummarizeCart(a.read(jar)))
}

// Items returns the cookie cart lines, empty when absent or unreadable.
func (a *CartActions) Items(jar CookieJar) []domain.CartItem { return a.read(jar) }

func (a *CartActions) AddToCart(ctx context.Context, jar CookieJar, productID, quantity string) ActionResult {
	id, err := parseProductID(productID)
	if err != nil {
		return failErr(err)
	}
	qty := 1
	if v, convErr := strconv.Atoi(strings.TrimSpace(quantity)); convErr == nil && v != 0 {
		qty = v
	}
	if qty < 1 {
		return failErr(domain.NewValidationError("quantity", "Quantity must be at least 1"))
	}
	if qty > maxCartQuantity {
		return failErr(domain.NewValidationError("quantity", "Quantity too high"))
	}

	p, err := a.Catalog.GetProduct(ctx, id)
	if err != nil {
		log.Error().Err(err).Int("product_id", id).Msg("add to cart: fetch product")
		if errors.Is(err, domain.ErrNotFound) {
			return fail("Product not found")
		}
		return fail("Could not load the product. Please try again.")
	}

	cart := a.read(jar)
	merged := false
	for i := range cart {
		if cart[i].Product.ID == id {
			cart[i].Quantity += qty
			merged = true
			break
		}
	}
	if !merged {
		cart = append(cart, domain.CartItem{Product: *p, Quantity: qty})
	}
	return a.commit(ctx, jar, cart)
}

func (a *CartActions) UpdateCartItem(ctx context.Context, jar CookieJar, productID, quantity string) ActionResult {
	id, err := parseProductID(productID)
	if err != nil {
		return failErr(err)
	}
	qty, convErr := strconv.Atoi(strings.TrimSpace(quantity))
	switch {
	case convErr != nil:
		return failErr(domain.NewValidationError("quantity", "Quantity must be a whole number"))
	case qty < 0:
		return failErr(domain.NewValidationError("quantity", "Quantity must be non-negative"))
	case qty > maxCartQuantity:
		return failErr(domain.NewValidationError("quantity", "Quantity too high"))
	}

	cart := a.read(jar)
	idx := -1
	for i := range cart {
		if cart[i].Product.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fail("Item not found in cart")
	}
	if qty == 0 {
		cart = append(cart[:idx], cart[idx+1:]...)
	} else {
		cart[idx].Quantity = qty
	}
	return a.commit(ctx, jar, cart)
}

// RemoveFromCart is idempotent: removing an absent product succeeds.
func (a *CartActions) RemoveFromCart(ctx context.Context, jar CookieJar, productID string) ActionResult {
	id, err := parseProductID(productID)
	if err != nil {
		return failErr(err)
	}
	cart := a.read(jar)
	out := cart[:0]
	for _, it := range cart {
		if it.Product.ID != id {
			out = append(out, it)
		}
	}
	return a.commit(ctx, jar, out)
}

func (a *CartActions) ClearCart(ctx context.Context, jar CookieJar) ActionResult {
	return a.commit(ctx, jar, []domain.CartItem{})
}

func (a *CartActions) ItemCount(_ context.Context, jar CookieJar) ActionResult {
	return succeed(domain.SummarizeCart(a.read(jar)).ItemCount)
}

func (a *CartActions) Total(_ context.Context, jar CookieJar) ActionResult {
	return succeed(domain.SummarizeCart(a.read(jar)).Total)
}

func (a *CartActions) commit(ctx context.Context, jar CookieJar, cart []domain.CartItem) ActionResult {
	if err := a.write(jar, cart); err != nil {
		log.Error().Err(err).Msg("cart cookie write")
		return fail("Could not save the cart. Please try again.")
	}
	if a.Cache != nil {
		if err := a.Cache.Invalidate(ctx, CartTag); err != nil {
			log.Warn().Err(err).Msg("cart cache invalidate")
		}
	}
	return succeed(domain.SummarizeCart(cart))
}

// read decodes the cookie cart. A missing or corrupt cookie is an empty cart.
func (a *CartActions) read(jar CookieJar) []domain.CartItem {
	raw, found := jar.Cookie(CartCookieName)
	if !found || raw == "" {
		return []domain.CartItem{}
	}
	cart, err := DecodeCart(raw)
	if err != nil {
		log.Warn().Err(err).Msg("discarding unreadable cart cookie")
		return []domain.CartItem{}
	}
	return cart
}

func (a *CartActions) write(jar CookieJar, cart []domain.CartItem) error {
	v, err := EncodeCart(cart)
	if err != nil {
		return err
	}
	if len(v) > maxCartCookieBytes {
		log.Warn().Int("bytes", len(v)).Int("lines", len(cart)).Msg("cart cookie exceeds browser size limit")
	}
	jar.SetCookie(&http.Cookie{
		Name:     CartCookieName,
		Value:    v,
		Path:     "/",
		MaxAge:   int(CartCookieTTL.Seconds()),
		Expires:  time.Now().Add(CartCookieTTL),
		HttpOnly: true,
		Secure:   a.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// EncodeCart serializes cart lines as base64url JSON, safe for a cookie value.
func EncodeCart(cart []domain.CartItem) (string, error) {
	if cart == nil {
		cart = []domain.CartItem{}
	}
	b, err := json.Marshal(cart)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCart(v string) ([]domain.CartItem, error) {
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return nil, errors.Join(domain.ErrCorruptState, err)
	}
	var cart []domain.CartItem
	if err := json.Unmarshal(b, &cart); err != nil {
		return nil, errors.Join(domain.ErrCorruptState, err)
	}
	out := cart[:0]
	for _, it := range cart {
		if it.Quantity > 0 && it.Product.ID > 0 {
			out = append(out, it)
		}
	}
	if out == nil {
		out = []domain.CartItem{}
	}
	return out, nil
}

func parseProductID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("productId", "Product ID must be a positive integer")
	}
	return id, nil
}

func failErr(err error) ActionResult {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return fail(ve.Message)
	}
	return fail(err.Error())
}
