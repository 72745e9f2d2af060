// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Source    SourceConfig    `mapstructure:"source"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	TMDB      TMDBConfig      `mapstructure:"tmdb"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourceConfig identifies the site being scraped.
type SourceConfig struct {
	BaseURL      string   `mapstructure:"base_url"`
	FallbackURLs []string `mapstructure:"fallback_urls"`
	Cookie       string   `mapstructure:"cookie"`
	AjaxURL      string   `mapstructure:"ajax_url"`
}

// HTTPConfig configures outbound fetch retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
	BackoffBaseMs  int `mapstructure:"backoff_base_ms"`
}

// ProxyConfig governs the rotating proxy pool.
type ProxyConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	List         []string `mapstructure:"list"`
	File         string   `mapstructure:"file"`
	Validate     bool     `mapstructure:"validate"`
	TestURL      string   `mapstructure:"test_url"`
	MaxValidated int      `mapstructure:"max_validated"`
}

// ResolverConfig bounds the embed resolution engine.
type ResolverConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// SyncConfig governs the episode sync orchestrator.
type SyncConfig struct {
	DelayMs           int `mapstructure:"delay_ms"`
	EpisodeRetries    int `mapstructure:"episode_retries"`
	MaxParallelSeries int `mapstructure:"max_parallel_series"`
	RecentLimit       int `mapstructure:"recent_limit"`
}

// SchedulerConfig wires the cron trigger.
type SchedulerConfig struct {
	CronExpr   string `mapstructure:"cron_expr"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// TMDBConfig holds catalog API access. An empty key disables lookups.
type TMDBConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Language string `mapstructure:"language"`
}

// DatabaseConfig controls access to the relational store.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	RingSize    int  `mapstructure:"ring_size"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOONSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.base_url", "https://toonstream.love")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base_ms", 500)
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.validate", false)
	v.SetDefault("proxy.test_url", "https://httpbin.org/ip")
	v.SetDefault("proxy.max_validated", 10)
	v.SetDefault("resolver.max_depth", 3)
	v.SetDefault("sync.delay_ms", 350)
	v.SetDefault("sync.episode_retries", 3)
	v.SetDefault("sync.max_parallel_series", 1)
	v.SetDefault("sync.recent_limit", 25)
	v.SetDefault("scheduler.cron_expr", "*/30 * * * *")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("tmdb.language", "en-US")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.ring_size", 500)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Resolver.MaxDepth < 1 {
		return fmt.Errorf("resolver.max_depth must be >= 1")
	}
	if c.Sync.EpisodeRetries < 1 {
		return fmt.Errorf("sync.episode_retries must be >= 1")
	}
	if c.Proxy.Enabled && len(c.Proxy.List) == 0 && c.Proxy.File == "" {
		return fmt.Errorf("proxy.list or proxy.file must be set when proxying is enabled")
	}
	if c.Scheduler.CronExpr == "" {
		return fmt.Errorf("scheduler.cron_expr must be set")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set when the database is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffBase converts the retry backoff base into a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.HTTP.BackoffBaseMs) * time.Millisecond
}

// SyncDelay converts the politeness delay into a duration.
func (c Config) SyncDelay() time.Duration {
	return time.Duration(c.Sync.DelayMs) * time.Millisecond
}
