package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Index     IndexConfig
	Embedder  EmbedderConfig
	AI        AIConfig
	Search    SearchConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// IndexConfig selects and configures the deal index backend
type IndexConfig struct {
	Type   string       `mapstructure:"type"` // "memory" or "qdrant"
	Qdrant QdrantConfig `mapstructure:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings
type QdrantConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmbedderConfig holds embedding backend configuration
type EmbedderConfig struct {
	Type         string        `mapstructure:"type"` // "hashing" or "openai"
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RequestsPerS float64       `mapstructure:"requests_per_s"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// AIConfig holds chat completion configuration
type AIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SearchConfig holds cross-store search configuration
type SearchConfig struct {
	PerStoreTimeout time.Duration `mapstructure:"per_store_timeout"`
	OverallTimeout  time.Duration `mapstructure:"overall_timeout"`
	DefaultLimit    int           `mapstructure:"default_limit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/dealscout/")

	// Environment variable settings
	v.SetEnvPrefix("DEALSCOUT")
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Index defaults
	v.SetDefault("index.type", "memory")
	v.SetDefault("index.qdrant.url", "http://localhost:6333")
	v.SetDefault("index.qdrant.timeout", "15s")

	// Embedder defaults
	v.SetDefault("embedder.type", "hashing")
	v.SetDefault("embedder.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedder.model", "text-embedding-3-small")
	v.SetDefault("embedder.timeout", "30s")
	v.SetDefault("embedder.requests_per_s", 5)
	v.SetDefault("embedder.cache_ttl", "1h")

	// AI defaults
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", "60s")

	// Search defaults
	v.SetDefault("search.per_store_timeout", "10s")
	v.SetDefault("search.overall_timeout", "25s")
	v.SetDefault("search.default_limit", 10)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Index.Type != "memory" && config.Index.Type != "qdrant" {
		return fmt.Errorf("index type must be 'memory' or 'qdrant', got: %s", config.Index.Type)
	}

	if config.Index.Type == "qdrant" && config.Index.Qdrant.URL == "" {
		return fmt.Errorf("Qdrant URL is required when index type is 'qdrant'")
	}

	if config.Embedder.Type != "hashing" && config.Embedder.Type != "openai" {
		return fmt.Errorf("embedder type must be 'hashing' or 'openai', got: %s", config.Embedder.Type)
	}

	if config.Embedder.Type == "openai" && config.Embedder.APIKey == "" {
		return fmt.Errorf("embedder API key is required (set DEALSCOUT_EMBEDDER_API_KEY)")
	}

	if config.Search.DefaultLimit < 0 {
		return fmt.Errorf("search default_limit must not be negative")
	}

	return nil
}
