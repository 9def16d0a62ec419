package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FallbackImage replaces an empty image list coming from the catalog.
const FallbackImage = "https://images.unsplash.com/photo-1560472354-b33ff0c44a43?w=600&h=600&fit=crop"

type Category struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Slug       string     `json:"slug"`
	Image      string     `json:"image"`
	CreationAt *time.Time `json:"creationAt,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

type Product struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Category    Category        `json:"category"`
	CreationAt  *time.Time      `json:"creationAt,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// Normalize trims blank image entries and guarantees at least one image.
func (p *Product) Normalize() {
	imgs := make([]string, 0, len(p.Images))
	for _, im := range p.Images {
		im = strings.TrimSpace(im)
		if im != "" {
			imgs = append(imgs, im)
		}
	}
	if len(imgs) == 0 {
		imgs = []string{FallbackImage}
	}
	p.Images = imgs
}

// MainImage returns the first image, or the fallback for an unnormalized product.
func (p Product) MainImage() string {
	for _, im := range p.Images {
		if strings.TrimSpace(im) != "" {
			return im
		}
	}
	return FallbackImage
}

// ProductFilter mirrors the query parameters understood by GET /products.
type ProductFilter struct {
	Title      string           `json:"title,omitempty"`
	PriceMin   *decimal.Decimal `json:"price_min,omitempty"`
	PriceMax   *decimal.Decimal `json:"price_max,omitempty"`
	CategoryID int              `json:"categoryId,omitempty"`
	Offset     int              `json:"offset,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

func (f ProductFilter) IsZero() bool {
	return f.Title == "" && f.PriceMin == nil && f.PriceMax == nil && f.CategoryID == 0 && f.Offset == 0 && f.Limit == 0
}
