package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
source:
  base_url: https://example.cam
  fallback_urls: ["https://mirror.example.cam"]
  cookie: "cf_clearance=abc"
http:
  timeout_seconds: 45
  max_retries: 5
  backoff_base_ms: 250
proxy:
  enabled: true
  list: ["10.0.0.1:8080", "10.0.0.2:8080"]
  validate: true
  test_url: https://example.org/ip
  max_validated: 2
resolver:
  max_depth: 4
sync:
  delay_ms: 100
  episode_retries: 2
scheduler:
  cron_expr: "*/15 * * * *"
  run_on_start: false
tmdb:
  api_key: tmdbkey
database:
  enabled: true
  dsn: postgres://localhost/toonstream
logging:
  development: false
  ring_size: 50
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Source.BaseURL != "https://example.cam" || len(cfg.Source.FallbackURLs) != 1 {
		t.Fatalf("expected source overrides to apply: %+v", cfg.Source)
	}
	if !cfg.Proxy.Enabled || len(cfg.Proxy.List) != 2 || cfg.Proxy.MaxValidated != 2 {
		t.Fatalf("expected proxy overrides to apply: %+v", cfg.Proxy)
	}
	if cfg.Resolver.MaxDepth != 4 {
		t.Fatalf("expected resolver depth 4, got %d", cfg.Resolver.MaxDepth)
	}
	if cfg.Scheduler.CronExpr != "*/15 * * * *" || cfg.Scheduler.RunOnStart {
		t.Fatalf("expected scheduler overrides to apply: %+v", cfg.Scheduler)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.BackoffBase(); got != 250*time.Millisecond {
		t.Fatalf("expected backoff base 250ms, got %v", got)
	}
	if got := cfg.SyncDelay(); got != 100*time.Millisecond {
		t.Fatalf("expected sync delay 100ms, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.HTTP.MaxRetries != 3 || cfg.HTTP.BackoffBaseMs != 500 {
		t.Fatalf("expected default retry knobs, got %+v", cfg.HTTP)
	}
	if cfg.Resolver.MaxDepth != 3 {
		t.Fatalf("expected default resolver depth 3, got %d", cfg.Resolver.MaxDepth)
	}
	if cfg.Proxy.Enabled {
		t.Fatalf("expected proxying disabled by default")
	}
	if cfg.Scheduler.CronExpr == "" {
		t.Fatalf("expected a default cron expression")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Source:    SourceConfig{BaseURL: "https://example.cam"},
		HTTP:      HTTPConfig{TimeoutSeconds: 30},
		Resolver:  ResolverConfig{MaxDepth: 3},
		Sync:      SyncConfig{EpisodeRetries: 3},
		Scheduler: SchedulerConfig{CronExpr: "*/30 * * * *"},
	}

	tests := []struct {
		name string
		cfg  func() Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			},
			want: "server.port",
		},
		{
			name: "missing base url",
			cfg: func() Config {
				c := base
				c.Source.BaseURL = ""
				return c
			},
			want: "source.base_url",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			},
			want: "http.timeout_seconds",
		},
		{
			name: "invalid resolver depth",
			cfg: func() Config {
				c := base
				c.Resolver.MaxDepth = 0
				return c
			},
			want: "resolver.max_depth",
		},
		{
			name: "proxy enabled without source",
			cfg: func() Config {
				c := base
				c.Proxy.Enabled = true
				return c
			},
			want: "proxy.list or proxy.file",
		},
		{
			name: "database enabled without dsn",
			cfg: func() Config {
				c := base
				c.Database.Enabled = true
				return c
			},
			want: "database.dsn",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			},
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg().Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
