package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// durationSeconds parses env as time.Duration: "10s", "5m" or bare number = seconds (e.g. "10" -> 10s).
type durationSeconds time.Duration

func (d *durationSeconds) SetValue(data string) error {
	v, err := parseDuration(data)
	if err != nil {
		return err
	}
	*d = durationSeconds(v)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	// Strip optional surrounding quotes: "10s" or '10s'
	if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
		s = s[1 : len(s)-1]
	}

	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	// Bare number first (e.g. TASKSYNC_HTTP_TIMEOUT=10) — so "10s" never goes to ParseInt
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration must be like 10s, 5m or a number of seconds: %w", err)
	}
	return d, nil
}

func (d durationSeconds) Duration() time.Duration { return time.Duration(d) }

type Config struct {
	App     AppConfig
	Server  ServerConfig
	Session SessionConfig
}

type AppConfig struct {
	Env     string `env:"APP_ENV" env-default:"dev"`
	Version string `env:"VERSION" env-default:"dev"`
}

type ServerConfig struct {
	// URL is the remote API base, e.g. https://tasksync.example.com/api/v1
	URL string `env:"TASKSYNC_SERVER_URL" env-default:"http://localhost:8080/api/v1"`

	// Value: "10s", "5m" or number of seconds without suffix (e.g. 10).
	Timeout durationSeconds `env:"TASKSYNC_HTTP_TIMEOUT" env-default:"15s"`
}

type SessionConfig struct {
	// File holds the persisted session record. Empty = ~/.tasksync/session.json.
	File string `env:"TASKSYNC_SESSION_FILE" env-default:""`

	// TTL after which a persisted token is treated as stale locally, before
	// the server is even asked. Value: "24h" or number of seconds.
	TTL durationSeconds `env:"TASKSYNC_SESSION_TTL" env-default:"24h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	cfg.Server.URL = strings.TrimRight(strings.TrimSpace(cfg.Server.URL), "/")
	if cfg.Server.URL == "" {
		return Config{}, fmt.Errorf("TASKSYNC_SERVER_URL is required")
	}
	if cfg.Session.File == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.Session.File = filepath.Join(home, ".tasksync", "session.json")
	}
	return cfg, nil
}
