package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration. It is loaded once in main and
// passed into constructors; no package reads the environment on its own.
type Config struct {
	AppHost      string `validate:"required"`
	AppPort      string `validate:"required"`
	AppEnv       string
	PublicDomain string

	MetricsUser     string
	MetricsPassword string

	DB      DBConfig
	Cache   CacheConfig
	Shopify ShopifyConfig
	Store   StoreConfig

	JobWorkers int `validate:"min=1,max=32"`
}

// DBConfig configures the app-local MySQL database.
type DBConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	User     string `validate:"required"`
	Password string
	Name     string `validate:"required"`
}

// CacheConfig configures the Redis/Dragonfly connection.
type CacheConfig struct {
	Host string `validate:"required"`
	Port string `validate:"required"`
}

// ShopifyConfig configures the commerce platform API access. The per-shop
// access token lives on the shop record; only app-level secrets are here.
type ShopifyConfig struct {
	APIKey     string
	APISecret  string // webhook HMAC secret
	APIVersion string `validate:"required"`
}

// StoreConfig configures the external REST data store that holds the
// canonical shop billing records. An empty URL or key disables the adapter;
// billing persistence then short-circuits instead of failing requests.
type StoreConfig struct {
	URL            string
	ServiceKey     string
	Table          string
	ShopsTable     string
	TimeoutSeconds int `validate:"min=1,max=60"`
}

// Enabled reports whether the external store is configured.
func (s StoreConfig) Enabled() bool {
	return strings.TrimSpace(s.URL) != "" && strings.TrimSpace(s.ServiceKey) != ""
}

// IsDev reports whether the app runs in development mode.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// Load reads the .env file (searched from the usual run locations), falls
// back to OS environment variables, and validates the result.
func Load() (*Config, error) {
	env := map[string]string{}
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/omafit to project root
		"../../../.env", // Fallback for deeper nesting
	}
	for _, envFile := range envFiles {
		if parsed, err := godotenv.Read(envFile); err == nil {
			env = parsed
			break
		}
	}

	get := func(key, def string) string {
		if val, ok := env[key]; ok {
			return val
		}
		if val := os.Getenv(key); val != "" {
			return val
		}
		return def
	}

	cfg := &Config{
		AppHost:         get("APP_HOST", "localhost"),
		AppPort:         get("APP_PORT", "4000"),
		AppEnv:          get("APP_ENV", "prod"),
		PublicDomain:    strings.TrimRight(get("PUBLIC_DOMAIN", ""), "/"),
		MetricsUser:     get("METRICS_USER", "admin"),
		MetricsPassword: get("METRICS_PASSWORD", ""),
		DB: DBConfig{
			Host:     get("DB_HOST", "127.0.0.1"),
			Port:     get("DB_PORT", "3306"),
			User:     get("DB_USER", ""),
			Password: get("DB_PASSWORD", ""),
			Name:     get("DB_NAME", ""),
		},
		Cache: CacheConfig{
			Host: get("CACHE_HOST", "localhost"),
			Port: get("CACHE_PORT", "6379"),
		},
		Shopify: ShopifyConfig{
			APIKey:     get("SHOPIFY_API_KEY", ""),
			APISecret:  get("SHOPIFY_API_SECRET", ""),
			APIVersion: get("SHOPIFY_API_VERSION", "2024-07"),
		},
		Store: StoreConfig{
			URL:            strings.TrimRight(get("STORE_URL", ""), "/"),
			ServiceKey:     get("STORE_SERVICE_KEY", ""),
			Table:          get("STORE_TABLE", "shop_billing"),
			ShopsTable:     get("STORE_SHOPS_TABLE", "shops"),
			TimeoutSeconds: atoiOr(get("STORE_TIMEOUT_SECONDS", ""), 12),
		},
		JobWorkers: atoiOr(get("JOB_WORKERS", ""), 3),
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
