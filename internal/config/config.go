package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port    string `yaml:"port"`
	AppEnv  string `yaml:"app_env"`
	BaseURL string `yaml:"base_url"`

	CatalogBaseURL string        `yaml:"catalog_base_url"`
	CatalogTimeout time.Duration `yaml:"catalog_timeout"`

	// CacheBackend is memory or redis.
	CacheBackend string `yaml:"cache_backend"`
	// StoreBackend is memory, redis or postgres.
	StoreBackend string `yaml:"store_backend"`
	RedisURL     string `yaml:"redis_url"`
	DatabaseDSN  string `yaml:"db_dsn"`

	SearchDebounce time.Duration `yaml:"search_debounce"`
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
	StateTTL       time.Duration `yaml:"state_ttl"`

	OTLPEndpoint string `yaml:"otel_exporter_otlp_endpoint"`
}

func (c Config) IsProduction() bool {
	e := strings.ToLower(c.AppEnv)
	return e == "production" || e == "prod"
}

func (c Config) IsDev() bool {
	e := strings.ToLower(c.AppEnv)
	return e == "" || e == "development" || e == "dev"
}

func defaults() Config {
	return Config{
		Port:           "8080",
		AppEnv:         "development",
		BaseURL:        "http://localhost:8080",
		CatalogBaseURL: "https://api.escuelajs.co/api/v1",
		CatalogTimeout: 10 * time.Second,
		CacheBackend:   "memory",
		StoreBackend:   "memory",
		RedisURL:       "redis://localhost:6379/0",
		SearchDebounce: 300 * time.Millisecond,
		SessionIdleTTL: 30 * time.Minute,
		StateTTL:       30 * 24 * time.Hour,
	}
}

// Load reads .env (if present), then the YAML file named by STOREFRONT_CONFIG
// (if set), then the environment. Later sources win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("PORT", &cfg.Port)
	str("APP_ENV", &cfg.AppEnv)
	str("BASE_URL", &cfg.BaseURL)
	str("CATALOG_BASE_URL", &cfg.CatalogBaseURL)
	str("CACHE_BACKEND", &cfg.CacheBackend)
	str("STORE_BACKEND", &cfg.StoreBackend)
	str("REDIS_URL", &cfg.RedisURL)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	for key, dst := range map[string]*time.Duration{
		"CATALOG_TIMEOUT":  &cfg.CatalogTimeout,
		"SEARCH_DEBOUNCE":  &cfg.SearchDebounce,
		"SESSION_IDLE_TTL": &cfg.SessionIdleTTL,
		"STATE_TTL":        &cfg.StateTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if dsn := strings.TrimSpace(getenv("DB_DSN")); dsn != "" {
		cfg.DatabaseDSN = dsn
	} else if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = dsnFromParts(getenv)
	}
	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	return nil
}

func dsnFromParts(getenv func(string) string) string {
	first := func(def string, keys ...string) string {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				return v
			}
		}
		return def
	}
	host := first("localhost", "DB_HOST")
	port := first("5432", "DB_PORT")
	user := first("postgres", "DB_USER", "POSTGRES_USER")
	pass := first("postgres", "DB_PASSWORD", "POSTGRES_PASSWORD")
	name := first("storefront", "DB_NAME", "POSTGRES_DB")
	ssl := first("disable", "DB_SSLMODE")
	return "host=" + host + " user=" + user + " password=" + pass + " dbname=" + name + " port=" + port + " sslmode=" + ssl
}

func (c Config) validate() error {
	switch c.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	switch c.StoreBackend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.CatalogTimeout <= 0 {
		return fmt.Errorf("CATALOG_TIMEOUT must be positive")
	}
	return nil
}
