package domain

import (
	"context"
	"time"
)

// Catalog is the read side of the remote product API.
type Catalog interface {
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, id int) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	SearchProducts(ctx context.Context, query string) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int) (*Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*Category, error)
	ProductsByCategory(ctx context.Context, categoryID int) ([]Product, error)
}

// AuthAPI forwards credentials to the remote API.
type AuthAPI interface {
	Login(ctx context.Context, c Credentials) (*AuthTokens, error)
	Profile(ctx context.Context, accessToken string) (*User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthTokens, error)
}

// StateStorage is the local-storage substrate behind the client state stores.
// Get returns ErrNotFound for a missing key.
type StateStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ResponseCache keeps upstream responses for a TTL and supports tag invalidation.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error
	InvalidateTag(ctx context.Context, tag string) error
}

// StoredState is a row of the Postgres-backed state storage.
type StoredState struct {
	Key       string `gorm:"primaryKey;size:200"`
	Value     []byte `gorm:"type:bytea"`
	UpdatedAt time.Time
}
