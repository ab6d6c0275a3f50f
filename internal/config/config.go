// Package config loads chatsearch settings from a config file, a .env file
// and CHATSEARCH_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/chatsearch-mcp/internal/embedder"
	"github.com/dshills/chatsearch-mcp/internal/searcher"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. CHATSEARCH_DB_PATH
	EnvPrefix = "CHATSEARCH"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.chatsearch/chatsearch.db"
)

var (
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidThreshold = errors.New("similarity threshold must be in (0, 1]")
	ErrInvalidLimit     = errors.New("search limits must be positive and default_limit <= max_limit")
)

// Config is the resolved application configuration
type Config struct {
	DBPath        string          `mapstructure:"db_path"`
	LogLevel      string          `mapstructure:"log_level"`
	EncryptionKey string          `mapstructure:"encryption_key"` // Base64, 32 bytes; empty reads plaintext only
	Embedding     EmbeddingConfig `mapstructure:"embedding"`
	Search        SearchConfig    `mapstructure:"search"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	CacheSize int    `mapstructure:"cache_size"`
}

// SearchConfig tunes the searcher
type SearchConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	DefaultLimit        int     `mapstructure:"default_limit"`
	MaxLimit            int     `mapstructure:"max_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("log_level", "info")
	v.SetDefault("encryption_key", "")
	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.cache_size", embedder.DefaultCacheSize)
	v.SetDefault("search.similarity_threshold", searcher.DefaultSimilarityThreshold)
	v.SetDefault("search.default_limit", searcher.DefaultLimit)
	v.SetDefault("search.max_limit", searcher.MaxLimit)
}

// Load reads configuration. configFile may be empty, in which case
// chatsearch.{yaml,toml,json} is looked up in the working directory and
// ~/.chatsearch; a missing file is not an error.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Nested keys map to underscores: search.max_limit -> CHATSEARCH_SEARCH_MAX_LIMIT
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("chatsearch")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".chatsearch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	path, err := expandHome(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	cfg.DBPath = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Search.SimilarityThreshold <= 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, c.Search.SimilarityThreshold)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("%w: default %d, max %d", ErrInvalidLimit, c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	return nil
}

// SlogLevel parses LogLevel
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return level, nil
}

// EmbedderConfig converts to the embedder factory's configuration
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		APIKey:    c.Embedding.APIKey,
		Model:     c.Embedding.Model,
		BaseURL:   c.Embedding.BaseURL,
		CacheSize: c.Embedding.CacheSize,
	}
}

// SearcherConfig converts to the searcher's configuration
func (c *Config) SearcherConfig(logger *slog.Logger) searcher.Config {
	return searcher.Config{
		SimilarityThreshold: c.Search.SimilarityThreshold,
		DefaultLimit:        c.Search.DefaultLimit,
		MaxLimit:            c.Search.MaxLimit,
		Logger:              logger,
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
