package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string   `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string   `usage:"PostgreSQL connection URL; enables the product table, sales journal and API key table" flag:"database-url"`
	APIKeyPepper   string   `usage:"HMAC pepper for API key hashing (POS_API_KEY_PEPPER)" flag:"api-key-pepper"`
	AdminKeyHashes []string `usage:"Hex HMAC hashes of admin API keys, used without a database" flag:"admin-key-hashes"`
	Registry       RegistryConfig
	Cache          CacheConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// RegistryConfig locates the external customer and product registries.
type RegistryConfig struct {
	CustomerURL string        `default:"http://localhost:9004/rest" usage:"Customer registry base URL" flag:"customer-url"`
	CatalogURL  string        `default:"http://localhost:9003/rest" usage:"Product registry base URL, used when no database is configured" flag:"catalog-url"`
	Timeout     time.Duration `default:"5s" usage:"Registry request timeout" flag:"registry-timeout"`
}

// CacheConfig controls the optional Redis customer cache.
type CacheConfig struct {
	RedisAddr string        `usage:"Redis address; enables the customer cache" flag:"redis-addr"`
	Password  string        `usage:"Redis password" flag:"redis-password"`
	DB        int           `default:"0" usage:"Redis database" flag:"redis-db"`
	TTL       time.Duration `default:"30s" usage:"Customer cache TTL" flag:"cache-ttl"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"600" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can serve requests.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && c.Registry.CatalogURL == "" {
		return errors.New("no product source: set POS_DATABASE_URL or POS_REGISTRY_CATALOG_URL")
	}
	if c.Registry.CustomerURL == "" {
		return errors.New("customer registry URL is required: set POS_REGISTRY_CUSTOMER_URL")
	}
	if c.Cache.RedisAddr != "" && c.Cache.TTL <= 0 {
		return errors.New("cache TTL must be positive")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
