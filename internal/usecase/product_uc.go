package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/phenrril/storefront/internal/domain"
)

const (
	// MinSearchLength is the shortest query sent upstream.
	MinSearchLength = 3

	featuredLimit           = 8
	featuredByCategoryLimit = 4
	suggestionLimit         = 4
	descriptionMin          = 50
)

type ProductUC struct {
	Catalog domain.Catalog
	Cache   domain.ResponseCache
}

func (uc *ProductUC) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	return uc.Catalog.ListProducts(ctx, f.WithDefaults())
}

// Search returns upstream matches in upstream order. Queries shorter than
// MinSearchLength return nothing without calling upstream.
func (uc *ProductUC) Search(ctx context.Context, q string) ([]domain.Product, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < MinSearchLength {
		return []domain.Product{}, nil
	}
	return uc.Catalog.SearchProducts(ctx, q)
}

// GetBySlug resolves a product route segment. It tries the slug itself,
// then a trailing "-{id}", then a bare numeric id.
func (uc *ProductUC) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, domain.NewValidationError("slug", "empty slug")
	}
	if id, err := strconv.Atoi(slug); err == nil && id > 0 {
		return uc.Catalog.GetProduct(ctx, id)
	}
	p, err := uc.Catalog.GetProductBySlug(ctx, slug)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return p, err
	}
	if id, found := domain.ExtractIDFromSlug(slug); found {
		return uc.Catalog.GetProduct(ctx, id)
	}
	return nil, err
}

func (uc *ProductUC) Categories(ctx context.Context) ([]domain.Category, error) {
	return uc.Catalog.ListCategories(ctx)
}

// CategoryBySlug resolves a category route segment, slug first then id.
func (uc *ProductUC) CategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, domain.NewValidationError("slug", "empty slug")
	}
	if id, err := strconv.Atoi(slug); err == nil && id > 0 {
		return uc.Catalog.GetCategory(ctx, id)
	}
	c, err := uc.Catalog.GetCategoryBySlug(ctx, slug)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return c, err
	}
	if id, found := domain.ExtractIDFromSlug(slug); found {
		return uc.Catalog.GetCategory(ctx, id)
	}
	return nil, err
}

func (uc *ProductUC) ProductsByCategory(ctx context.Context, categoryID int) ([]domain.Product, error) {
	return uc.Catalog.ProductsByCategory(ctx, categoryID)
}

// Featured picks products priced at or above the average of a sample,
// with a real description and images, most expensive first.
func (uc *ProductUC) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = featuredLimit
	}
	list, err := uc.Catalog.ListProducts(ctx, domain.ProductFilter{Limit: limit * 2})
	if err != nil {
		return nil, err
	}
	avg := averagePrice(list)
	out := make([]domain.Product, 0, limit)
	for _, p := range list {
		if p.Price.GreaterThanOrEqual(avg) && len(p.Description) > descriptionMin && hasImages(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FeaturedByCategory is Featured scoped to one category with a looser price
// bar (80% of the average), ranked by a blend of price and recency.
func (uc *ProductUC) FeaturedByCategory(ctx context.Context, categoryID, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = featuredByCategoryLimit
	}
	list, err := uc.Catalog.ListProducts(ctx, domain.ProductFilter{CategoryID: categoryID, Limit: limit * 3})
	if err != nil {
		return nil, err
	}
	bar := averagePrice(list).Mul(decimal.NewFromFloat(0.8))
	out := make([]domain.Product, 0, limit)
	for _, p := range list {
		if p.Price.GreaterThanOrEqual(bar) && len(p.Description) > descriptionMin && hasImages(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return featuredScore(out[i]) > featuredScore(out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CartSuggestions lists products from the categories in the cart that are
// not in it yet. Results are cached under the cart tag.
func (uc *ProductUC) CartSuggestions(ctx context.Context, items []domain.CartItem) ([]domain.Product, error) {
	if len(items) == 0 {
		return []domain.Product{}, nil
	}
	inCart := map[int]bool{}
	var cats []int
	seenCat := map[int]bool{}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		inCart[it.Product.ID] = true
		ids = append(ids, strconv.Itoa(it.Product.ID))
		if c := it.Product.Category.ID; c > 0 && !seenCat[c] {
			seenCat[c] = true
			cats = append(cats, c)
		}
	}
	sort.Strings(ids)
	key := "cart-suggestions:" + strings.Join(ids, ",")
	if uc.Cache != nil {
		if raw, hit := uc.Cache.Get(ctx, key); hit {
			var cached []domain.Product
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	out := []domain.Product{}
	for _, c := range cats {
		if len(out) == suggestionLimit {
			break
		}
		list, err := uc.Catalog.ProductsByCategory(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("cart suggestions: %w", err)
		}
		for _, p := range list {
			if len(out) == suggestionLimit {
				break
			}
			if !inCart[p.ID] {
				inCart[p.ID] = true
				out = append(out, p)
			}
		}
	}

	if uc.Cache != nil {
		if b, err := json.Marshal(out); err == nil {
			if err := uc.Cache.Set(ctx, key, b, time.Hour, CartTag); err != nil {
				log.Warn().Err(err).Msg("cache cart suggestions")
			}
		}
	}
	return out, nil
}

func averagePrice(list []domain.Product) decimal.Decimal {
	if len(list) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range list {
		sum = sum.Add(p.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(list))))
}

func hasImages(p domain.Product) bool {
	return len(p.Images) > 0 && strings.TrimSpace(p.Images[0]) != ""
}

func featuredScore(p domain.Product) float64 {
	var ts float64
	if p.CreationAt != nil {
		ts = float64(p.CreationAt.UnixMilli())
	}
	return p.Price.InexactFloat64()*0.7 + ts*0.3
}
