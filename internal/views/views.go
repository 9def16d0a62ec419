package views

import (
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

//go:embed *.html
var FS embed.FS

// FuncMap holds the helpers every page template may call.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"add":   func(a, b int) int { return a + b },
		"sub":   func(a, b int) int { return a - b },
		"money": Money,
		"line": func(price decimal.Decimal, qty int) string {
			return Money(price.Mul(decimal.NewFromInt(int64(qty))))
		},
		"img": func(u string) string {
			s := strings.TrimSpace(u)
			if s == "" {
				return s
			}
			return strings.ReplaceAll(s, " ", "%20")
		},
		"truncate": func(s string, n int) string {
			r := []rune(s)
			if len(r) <= n {
				return s
			}
			return strings.TrimSpace(string(r[:n])) + "…"
		},
		"query": func(v url.Values) string {
			if len(v) == 0 {
				return ""
			}
			return "?" + v.Encode()
		},
	}
}

// Money formats an amount as dollars with thousands separators.
func Money(v decimal.Decimal) string {
	s := v.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	n := len(intPart)
	rem := n % 3
	if rem == 0 {
		rem = 3
	}
	out := intPart[:rem]
	for i := rem; i < n; i += 3 {
		out += "," + intPart[i:i+3]
	}
	if v.IsNegative() {
		return fmt.Sprintf("-$%s.%s", out, frac)
	}
	return fmt.Sprintf("$%s.%s", out, frac)
}

// Parse loads the embedded page set.
func Parse() (*template.Template, error) {
	return template.New("layout").Funcs(FuncMap()).ParseFS(FS, "*.html")
}
