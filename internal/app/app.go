package app

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/phenrril/storefront/internal/adapters/cache"
	"github.com/phenrril/storefront/internal/adapters/catalog"
	"github.com/phenrril/storefront/internal/adapters/httpserver"
	pgrepo "github.com/phenrril/storefront/internal/adapters/repo/postgres"
	"github.com/phenrril/storefront/internal/adapters/storage"
	"github.com/phenrril/storefront/internal/config"
	"github.com/phenrril/storefront/internal/domain"
	"github.com/phenrril/storefront/internal/search"
	"github.com/phenrril/storefront/internal/session"
	"github.com/phenrril/storefront/internal/usecase"
	"github.com/phenrril/storefront/internal/views"
)

const (
	janitorInterval = time.Minute
	purgeInterval   = time.Hour
)

type App struct {
	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Tmpl   *template.Template

	Cache    domain.ResponseCache
	Storage  domain.StateStorage
	States   *pgrepo.StateRepo
	Sessions *session.Registry
	Catalog  *catalog.Client

	ProductUC  *usecase.ProductUC
	CartUC     *usecase.CartActions
	CartSyncUC *usecase.CartSync
	CheckoutUC *usecase.CheckoutUC
	AuthUC     *usecase.AuthUC
}

func NewApp(cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.CacheBackend == "redis" || cfg.StoreBackend == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.Redis = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	switch cfg.CacheBackend {
	case "redis":
		a.Cache = cache.NewRedisCache(a.Redis)
	default:
		a.Cache = cache.NewMemoryCache()
	}

	switch cfg.StoreBackend {
	case "redis":
		a.Storage = storage.NewRedis(a.Redis, cfg.StateTTL)
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		a.States = pgrepo.NewStateRepo(db)
		if err := a.States.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate stored states: %w", err)
		}
		a.Storage = a.States
	default:
		a.Storage = storage.NewMemory()
	}
	log.Info().Str("cache", cfg.CacheBackend).Str("store", cfg.StoreBackend).Msg("backends ready")

	a.Catalog = catalog.New(catalog.Options{
		BaseURL: cfg.CatalogBaseURL,
		Timeout: cfg.CatalogTimeout,
		Cache:   a.Cache,
	})
	a.Sessions = session.NewRegistry(a.Storage, cfg.SessionIdleTTL)

	secure := cfg.IsProduction()
	a.ProductUC = &usecase.ProductUC{Catalog: a.Catalog, Cache: a.Cache}
	a.CartUC = &usecase.CartActions{Catalog: a.Catalog, Cache: a.Catalog, Secure: secure}
	a.CartSyncUC = &usecase.CartSync{Actions: a.CartUC}
	a.CheckoutUC = &usecase.CheckoutUC{Cart: a.CartUC}
	a.AuthUC = &usecase.AuthUC{API: a.Catalog, Secure: secure}

	var err error
	if cfg.IsDev() {
		// templates reload from disk on restart without a rebuild
		a.Tmpl, err = template.New("layout").Funcs(views.FuncMap()).ParseGlob("internal/views/*.html")
		if err != nil {
			log.Warn().Err(err).Msg("templates not found on disk, using embedded set")
			a.Tmpl, err = views.Parse()
		}
	} else {
		a.Tmpl, err = views.Parse()
	}
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return a, nil
}

func (a *App) HTTPHandler() http.Handler {
	return httpserver.New(httpserver.Deps{
		Templates: a.Tmpl,
		Products:  a.ProductUC,
		Cart:      a.CartUC,
		CartSync:  a.CartSyncUC,
		Checkout:  a.CheckoutUC,
		Auth:      a.AuthUC,
		Sessions:  a.Sessions,
		Search:    search.Config{Debounce: a.Config.SearchDebounce, MinLen: usecase.MinSearchLength},
		BaseURL:   a.Config.BaseURL,
		Secure:    a.Config.IsProduction(),
	})
}

// RunJanitors evicts idle sessions and, with Postgres storage, purges state
// rows older than the state TTL. It blocks until ctx is done.
func (a *App) RunJanitors(ctx context.Context) error {
	if a.States == nil || a.Config.StateTTL <= 0 {
		a.Sessions.Run(ctx, janitorInterval)
		return nil
	}
	go a.Sessions.Run(ctx, janitorInterval)

	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := a.States.PurgeBefore(ctx, time.Now().Add(-a.Config.StateTTL))
			if err != nil {
				log.Warn().Err(err).Msg("purge stored states")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("stale client state removed")
			}
		}
	}
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
