package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	trailingID   = regexp.MustCompile(`-([0-9]+)$`)
)

// GenerateSlug lowercases text and joins its alphanumeric runs with hyphens.
func GenerateSlug(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = nonSlugChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// CreateUniqueSlug returns "<slug(name)>-<id>".
func CreateUniqueSlug(name string, id int) string {
	return fmt.Sprintf("%s-%d", GenerateSlug(name), id)
}

// ExtractIDFromSlug returns the numeric suffix of a "name-id" slug.
func ExtractIDFromSlug(slug string) (int, bool) {
	m := trailingID.FindStringSubmatch(slug)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
