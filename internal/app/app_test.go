package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenrril/storefront/internal/adapters/cache"
	"github.com/phenrril/storefront/internal/adapters/httpserver"
	"github.com/phenrril/storefront/internal/adapters/storage"
	"github.com/phenrril/storefront/internal/config"
	"github.com/phenrril/storefront/internal/uistore"
)

func testConfig() config.Config {
	return config.Config{
		Port:           "0",
		AppEnv:         "test",
		CatalogBaseURL: "http://127.0.0.1:1",
		CatalogTimeout: time.Second,
		CacheBackend:   "memory",
		StoreBackend:   "memory",
		SessionIdleTTL: time.Minute,
	}
}

func TestNewApp_Memory(t *testing.T) {
	a, err := NewApp(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &cache.MemoryCache{}, a.Cache)
	assert.IsType(t, &storage.Memory{}, a.Storage)
	assert.Nil(t, a.Redis)

	rec := httptest.NewRecorder()
	a.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApp_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.CacheBackend = "redis"
	cfg.StoreBackend = "redis"
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	a, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &cache.RedisCache{}, a.Cache)
	assert.IsType(t, &storage.Redis{}, a.Storage)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/store/ui", strings.NewReader(`{"action":"setViewMode","value":"list"}`))
	req.Header.Set("Content-Type", "application/json")
	a.HTTPHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var visitor string
	for _, c := range rec.Result().Cookies() {
		if c.Name == httpserver.VisitorCookie {
			visitor = c.Value
		}
	}
	require.NotEmpty(t, visitor)
	assert.True(t, mr.Exists("state:"+uistore.Key(visitor)))
}

func TestNewApp_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.CacheBackend = "redis"
	cfg.RedisURL = "not a url"

	_, err := NewApp(cfg)
	assert.Error(t, err)
}
