package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/phenrril/storefront/internal/domain"
)

const DefaultBaseURL = "https://api.escuelajs.co/api/v1"

// revalidate windows per resource
const (
	ttlProducts   = 3600 * time.Second
	ttlCategories = 7200 * time.Second
	ttlSearch     = 1800 * time.Second
)

// Options configures a Client. Zero values fall back to sane defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Cache     domain.ResponseCache
	Transport http.RoundTripper
}

// Client talks to the remote catalog REST API. Reads go through the
// response cache and concurrent identical reads share one upstream call.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	cache   domain.ResponseCache
	group   singleflight.Group
}

func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rt := opts.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(rt)},
		timeout: timeout,
		cache:   opts.Cache,
	}
}

func (c *Client) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	path := "/products"
	if q := filterQuery(f); q != "" {
		path += "?" + q
	}
	var list []domain.Product
	if err := c.fetch(ctx, "list products", path, ttlProducts, []string{"products"}, &list); err != nil {
		return nil, err
	}
	return normalizeAll(list), nil
}

func (c *Client) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	var p domain.Product
	path := fmt.Sprintf("/products/%d", id)
	if err := c.fetch(ctx, "get product", path, ttlProducts, []string{fmt.Sprintf("product-%d", id)}, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

func (c *Client) GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	var p domain.Product
	path := "/products/slug/" + url.PathEscape(slug)
	if err := c.fetch(ctx, "get product by slug", path, ttlProducts, []string{"product-slug-" + slug}, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

func (c *Client) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	var list []domain.Product
	path := "/products/?title=" + url.QueryEscape(query)
	if err := c.fetch(ctx, "search products", path, ttlSearch, []string{"products", "search"}, &list); err != nil {
		return nil, err
	}
	return normalizeAll(list), nil
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var list []domain.Category
	if err := c.fetch(ctx, "list categories", "/categories", ttlCategories, []string{"categories"}, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) GetCategory(ctx context.Context, id int) (*domain.Category, error) {
	var cat domain.Category
	path := fmt.Sprintf("/categories/%d", id)
	if err := c.fetch(ctx, "get category", path, ttlProducts, []string{fmt.Sprintf("category-%d", id)}, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	var cat domain.Category
	path := "/categories/slug/" + url.PathEscape(slug)
	if err := c.fetch(ctx, "get category by slug", path, ttlProducts, []string{"category-slug-" + slug}, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) ProductsByCategory(ctx context.Context, categoryID int) ([]domain.Product, error) {
	var list []domain.Product
	path := fmt.Sprintf("/categories/%d/products", categoryID)
	if err := c.fetch(ctx, "products by category", path, ttlProducts, []string{fmt.Sprintf("category-%d-products", categoryID)}, &list); err != nil {
		return nil, err
	}
	return normalizeAll(list), nil
}

// Invalidate drops every cached response stored under tag.
func (c *Client) Invalidate(ctx context.Context, tag string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.InvalidateTag(ctx, tag)
}

func (c *Client) fetch(ctx context.Context, op, path string, ttl time.Duration, tags []string, out any) error {
	if c.cache != nil {
		if raw, ok := c.cache.Get(ctx, path); ok {
			if err := json.Unmarshal(raw, out); err == nil {
				return nil
			}
			log.Warn().Str("path", path).Msg("discarding undecodable cache entry")
		}
	}
	// The shared call outlives any single caller; each caller stops waiting
	// when its own ctx is done.
	ch := c.group.DoChan(path, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		body, err := c.do(fctx, op, http.MethodGet, path, nil, nil)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(fctx, path, body, ttl, tags...); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("cache set failed")
			}
		}
		return body, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return res.Err
	}
	if err := json.Unmarshal(res.Val.([]byte), out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// do performs one upstream call. Non-2xx answers become *domain.UpstreamError,
// transport failures wrap domain.ErrUpstreamUnavailable.
func (c *Client) do(ctx context.Context, op, method, path string, body any, hc *http.Client) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hc == nil {
		hc = c.http
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w: %w", op, domain.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: upstreamMessage(data)}
	}
	return data, nil
}

// upstreamMessage pulls the "message" field out of an error body. The API
// sends it either as a string or as a list of strings.
func upstreamMessage(data []byte) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if json.Unmarshal(data, &payload) != nil || len(payload.Message) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(payload.Message, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(payload.Message, &list) == nil {
		return strings.Join(list, ", ")
	}
	return ""
}

func filterQuery(f domain.ProductFilter) string {
	v := url.Values{}
	if f.Title != "" {
		v.Set("title", f.Title)
	}
	if f.PriceMin != nil {
		v.Set("price_min", f.PriceMin.String())
	}
	if f.PriceMax != nil {
		v.Set("price_max", f.PriceMax.String())
	}
	if f.CategoryID > 0 {
		v.Set("categoryId", strconv.Itoa(f.CategoryID))
	}
	if f.Offset > 0 || f.Limit > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v.Encode()
}

func normalizeAll(list []domain.Product) []domain.Product {
	if list == nil {
		return []domain.Product{}
	}
	for i := range list {
		list[i].Normalize()
	}
	return list
}
