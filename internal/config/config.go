package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout   int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout    int    `mapstructure:"idle_timeout"`  // in seconds
	FrontendOrigin string `mapstructure:"frontend_origin"`
}

// FarcasterConfig holds identity provider configuration
type FarcasterConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

// NFTProviderConfig holds NFT provider configuration. ChainURLs maps a chain
// name to its API base URL.
type NFTProviderConfig struct {
	APIKey    string            `mapstructure:"api_key"`
	ChainURLs map[string]string `mapstructure:"chain_urls"`
}

// URLForChain returns the configured base URL for a chain
func (c *NFTProviderConfig) URLForChain(chain domain.Chain) (string, bool) {
	url, ok := c.ChainURLs[string(chain)]
	return url, ok
}

// RedisConfig holds the optional persistent cache mirror configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds cache TTLs and the schema version tag
type CacheConfig struct {
	IdentityTTL   time.Duration `mapstructure:"identity_ttl"`
	NFTsTTL       time.Duration `mapstructure:"nfts_ttl"`
	OwnersTTL     time.Duration `mapstructure:"owners_ttl"`
	FollowingTTL  time.Duration `mapstructure:"following_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Version       int           `mapstructure:"version"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// AggregatorConfig holds fan-out bounds and request budgets
type AggregatorConfig struct {
	Chains              []string      `mapstructure:"chains"`
	PerChainParallelism int           `mapstructure:"per_chain_parallelism"`
	PageSize            int           `mapstructure:"page_size"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	AdapterTimeout      time.Duration `mapstructure:"adapter_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	InitialRetryDelay   time.Duration `mapstructure:"initial_retry_delay"`
}

// DomainChains converts the configured chain names
func (c *AggregatorConfig) DomainChains() ([]domain.Chain, error) {
	return domain.ParseChains(strings.Join(c.Chains, ","))
}

// RateLimitConfig holds per-provider request budgets
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
}

// RateLimiterConfig holds the local rate limiter configuration
type RateLimiterConfig struct {
	MaxWorkers   int                        `mapstructure:"max_workers"`
	MaxQueueSize int                        `mapstructure:"max_queue_size"`
	Providers    map[string]RateLimitConfig `mapstructure:"providers"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// ImageProxyConfig holds the image proxy host allow-list
type ImageProxyConfig struct {
	AllowedHostPrefixes []string      `mapstructure:"allowed_host_prefixes"`
	CacheMaxAge         time.Duration `mapstructure:"cache_max_age"`
}

// APIConfig holds configuration for the API gateway binary
type APIConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Server      ServerConfig      `mapstructure:"server"`
	Farcaster   FarcasterConfig   `mapstructure:"farcaster"`
	NFTProvider NFTProviderConfig `mapstructure:"nft_provider"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Aggregator  AggregatorConfig  `mapstructure:"aggregator"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Auth        AuthConfig        `mapstructure:"auth"`
	ImageProxy  ImageProxyConfig  `mapstructure:"image_proxy"`
}

// Validate checks the required upstream credentials and URLs
func (c *APIConfig) Validate() error {
	if c.Farcaster.APIURL == "" {
		return errors.New("farcaster.api_url is required")
	}
	if c.Farcaster.APIKey == "" {
		return errors.New("farcaster.api_key is required")
	}
	if c.NFTProvider.APIKey == "" {
		return errors.New("nft_provider.api_key is required")
	}
	chains, err := c.Aggregator.DomainChains()
	if err != nil {
		return err
	}
	for _, chain := range chains {
		if _, ok := c.NFTProvider.URLForChain(chain); !ok {
			return fmt.Errorf("nft_provider.chain_urls missing entry for chain %q", chain)
		}
	}
	if c.Aggregator.PageSize < 1 || c.Aggregator.PageSize > 100 {
		return fmt.Errorf("aggregator.page_size must be within [1, 100], got %d", c.Aggregator.PageSize)
	}
	return nil
}

// LoadAPIConfig loads configuration for the API gateway
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 65)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("nft_provider.chain_urls", map[string]string{
		"eth":  "https://eth-mainnet.g.alchemy.com",
		"base": "https://base-mainnet.g.alchemy.com",
	})
	v.SetDefault("farcaster.api_url", "https://api.neynar.com")
	v.SetDefault("cache.identity_ttl", "30m")
	v.SetDefault("cache.nfts_ttl", "30m")
	v.SetDefault("cache.owners_ttl", "30m")
	v.SetDefault("cache.following_ttl", "30m")
	v.SetDefault("cache.sweep_interval", "5m")
	v.SetDefault("cache.version", 1)
	v.SetDefault("aggregator.chains", []string{"eth", "base"})
	v.SetDefault("aggregator.per_chain_parallelism", 3)
	v.SetDefault("aggregator.page_size", 100)
	v.SetDefault("aggregator.request_timeout", "60s")
	v.SetDefault("aggregator.adapter_timeout", "15s")
	v.SetDefault("aggregator.max_retries", 2)
	v.SetDefault("aggregator.initial_retry_delay", "1s")
	v.SetDefault("rate_limiter.max_workers", 32)
	v.SetDefault("rate_limiter.max_queue_size", 1024)
	v.SetDefault("rate_limiter.providers", map[string]RateLimitConfig{
		"farcaster": {RequestsPerSecond: 5, Burst: 10},
		"alchemy":   {RequestsPerSecond: 10, Burst: 20},
	})
	v.SetDefault("image_proxy.allowed_host_prefixes", []string{
		"i.seadn.io",
		"ipfs.io",
		"nft-cdn.alchemy.com",
		"res.cloudinary.com",
		"imagedelivery.net",
	})
	v.SetDefault("image_proxy.cache_max_age", "24h")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// config file not found, use environment variables
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// configureViper sets up viper with env binding for a service
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	loadEnv(envPath, service)

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(service)
		v.SetConfigType("yaml")
		v.AddConfigPath("config/")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	return v
}

// bindEnvs binds the known configuration keys to environment variables
func bindEnvs(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		"server.frontend_origin",
		// Providers
		"farcaster.api_url",
		"farcaster.api_key",
		"nft_provider.api_key",
		// Cache
		"cache.identity_ttl",
		"cache.nfts_ttl",
		"cache.owners_ttl",
		"cache.following_ttl",
		"cache.sweep_interval",
		"cache.version",
		"cache.redis.enabled",
		"cache.redis.addr",
		"cache.redis.password",
		"cache.redis.db",
		// Aggregator
		"aggregator.chains",
		"aggregator.per_chain_parallelism",
		"aggregator.page_size",
		"aggregator.request_timeout",
		"aggregator.adapter_timeout",
		"aggregator.max_retries",
		"aggregator.initial_retry_delay",
		// Rate limiter
		"rate_limiter.max_workers",
		"rate_limiter.max_queue_size",
		// Auth
		"auth.enabled",
		"auth.jwt_public_key",
		"auth.api_keys",
		// Image proxy
		"image_proxy.allowed_host_prefixes",
		"image_proxy.cache_max_age",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local", ".env." + service + ".local"}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}
