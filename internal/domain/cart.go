package domain

import "github.com/shopspring/decimal"

// CartLineItem is a line of the visitor's client-side cart.
type CartLineItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Slug     string          `json:"slug"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
	Quantity int             `json:"quantity"`
}

// CartItem is a line of the cookie-backed server mirror: a full product snapshot.
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// CartSummary is the payload returned by every cart server action.
type CartSummary struct {
	Items     []CartItem      `json:"items"`
	ItemCount int             `json:"itemCount"`
	Total     decimal.Decimal `json:"total"`
}

func SummarizeCart(items []CartItem) CartSummary {
	if items == nil {
		items = []CartItem{}
	}
	count := 0
	total := decimal.Zero
	for _, it := range items {
		count += it.Quantity
		total = total.Add(it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return CartSummary{Items: items, ItemCount: count, Total: total}
}
