package domain

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseProductFilter reads filter fields from query values. Unparsable or
// out of range values are ignored rather than rejected.
func ParseProductFilter(q url.Values) ProductFilter {
	var f ProductFilter
	f.Title = strings.TrimSpace(q.Get("title"))
	if f.Title == "" {
		f.Title = strings.TrimSpace(q.Get("search"))
	}
	f.PriceMin = parseDecimal(q.Get("price_min"))
	f.PriceMax = parseDecimal(q.Get("price_max"))
	if v, ok := parseInt(q.Get("categoryId")); ok {
		f.CategoryID = v
	}
	if v, ok := parseInt(q.Get("offset")); ok && v >= 0 {
		f.Offset = v
	}
	if v, ok := parseInt(q.Get("limit")); ok && v > 0 && v <= MaxPageSize {
		f.Limit = v
	}
	return f
}

// WithDefaults fills the page size when none was requested.
func (f ProductFilter) WithDefaults() ProductFilter {
	if f.Limit <= 0 || f.Limit > MaxPageSize {
		f.Limit = DefaultPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Query encodes the filter back into page query parameters.
func (f ProductFilter) Query() url.Values {
	v := url.Values{}
	if f.Title != "" {
		v.Set("search", f.Title)
	}
	if f.PriceMin != nil {
		v.Set("price_min", f.PriceMin.String())
	}
	if f.PriceMax != nil {
		v.Set("price_max", f.PriceMax.String())
	}
	if f.CategoryID != 0 {
		v.Set("categoryId", strconv.Itoa(f.CategoryID))
	}
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}

func parseDecimal(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// parseInt accepts a leading integer the way form inputs usually send it.
func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	end := 0
	if s[0] == '-' || s[0] == '+' {
		end = 1
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}
