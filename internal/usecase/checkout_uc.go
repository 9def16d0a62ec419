package usecase

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/phenrril/storefront/internal/cartstore"
	"github.com/phenrril/storefront/internal/domain"
)

var (
	freeShippingOver = decimal.NewFromInt(200)
	shippingFee      = decimal.RequireFromString("15.99")
	taxRate          = decimal.RequireFromString("0.08")

	zipPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{2,9}$`)
)

var paymentMethods = map[string]bool{"card": true, "pix": true, "boleto": true}

// CheckoutForm is the shipping and contact data of a simulated order.
type CheckoutForm struct {
	Email         string
	FirstName     string
	LastName      string
	Address       string
	City          string
	State         string
	ZipCode       string
	Phone         string
	PaymentMethod string
	Notes         string
}

// Quote is the price breakdown shown before and after checkout.
type Quote struct {
	Items    []domain.CartItem `json:"items"`
	Subtotal decimal.Decimal   `json:"subtotal"`
	Shipping decimal.Decimal   `json:"shipping"`
	Tax      decimal.Decimal   `json:"tax"`
	Total    decimal.Decimal   `json:"total"`
}

type Confirmation struct {
	OrderNumber string    `json:"orderNumber"`
	PlacedAt    time.Time `json:"placedAt"`
	Email       string    `json:"email"`
	Quote       Quote     `json:"quote"`
}

// FieldErrors maps form field names to messages.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, "; ")
}

// CheckoutUC simulates an order: nothing is charged or stored, the cart is
// priced from the cookie mirror and then emptied.
type CheckoutUC struct {
	Cart *CartActions
}

func (uc *CheckoutUC) Quote(jar CookieJar) Quote {
	return quoteFor(uc.Cart.Items(jar))
}

func (uc *CheckoutUC) PlaceOrder(ctx context.Context, jar CookieJar, store *cartstore.Store, f CheckoutForm) (*Confirmation, error) {
	if errs := f.Validate(); len(errs) > 0 {
		return nil, errs
	}
	q := uc.Quote(jar)
	if len(q.Items) == 0 {
		return nil, domain.NewValidationError("cart", "Your cart is empty")
	}
	conf := &Confirmation{
		OrderNumber: strings.ToUpper(uuid.NewString()[:8]),
		PlacedAt:    time.Now(),
		Email:       strings.TrimSpace(f.Email),
		Quote:       q,
	}
	if res := uc.Cart.ClearCart(ctx, jar); !res.Success {
		log.Warn().Str("order", conf.OrderNumber).Str("error", res.Error).Msg("checkout: clear cookie cart")
	}
	if store != nil {
		store.Clear()
	}
	log.Info().Str("order", conf.OrderNumber).Str("total", q.Total.StringFixed(2)).Int("lines", len(q.Items)).Msg("simulated order placed")
	return conf, nil
}

// Validate checks the form and returns one message per bad field.
func (f CheckoutForm) Validate() FieldErrors {
	errs := FieldErrors{}
	if _, err := mail.ParseAddress(strings.TrimSpace(f.Email)); err != nil {
		errs["email"] = "Invalid email address"
	}
	if len(strings.TrimSpace(f.FirstName)) < 2 {
		errs["firstName"] = "First name must have at least 2 characters"
	}
	if len(strings.TrimSpace(f.LastName)) < 2 {
		errs["lastName"] = "Last name must have at least 2 characters"
	}
	if len(strings.TrimSpace(f.Address)) < 5 {
		errs["address"] = "Address must have at least 5 characters"
	}
	if len(strings.TrimSpace(f.City)) < 2 {
		errs["city"] = "City must have at least 2 characters"
	}
	if len(strings.TrimSpace(f.State)) < 2 {
		errs["state"] = "State must have at least 2 characters"
	}
	if !zipPattern.MatchString(strings.TrimSpace(f.ZipCode)) {
		errs["zipCode"] = "Invalid postal code"
	}
	if f.PaymentMethod != "" && !paymentMethods[f.PaymentMethod] {
		errs["paymentMethod"] = "Unknown payment method"
	}
	return errs
}

func quoteFor(items []domain.CartItem) Quote {
	sum := domain.SummarizeCart(items)
	q := Quote{Items: sum.Items, Subtotal: sum.Total, Shipping: decimal.Zero}
	if len(sum.Items) > 0 && !sum.Total.GreaterThan(freeShippingOver) {
		q.Shipping = shippingFee
	}
	q.Tax = sum.Total.Mul(taxRate).Round(2)
	q.Total = q.Subtotal.Add(q.Shipping).Add(q.Tax)
	return q
}
