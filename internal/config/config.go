// Package config loads process configuration from the environment,
// following the typed-struct-over-os.Getenv approach used throughout the
// graph-adjacent corpus rather than introducing a generic config framework.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-recognized option from spec.md §6.
type Config struct {
	// HTTPAddr is the bind address for the API server.
	HTTPAddr string

	// DatabaseDriver selects "mysql" or "sqlite" (spec.md's storage is
	// abstract; the teacher ships both backends behind one Store interface).
	DatabaseDriver string
	DatabaseDSN    string

	// BrokerAddr is the Redis address backing the automation task fabric.
	BrokerAddr     string
	BrokerPassword string
	BrokerDB       int

	// SearchIndexURL + SearchIndexKey are the external search index the
	// indexing task syncs to. Out of scope per spec.md; consumed as a
	// plain HTTP endpoint.
	SearchIndexURL string
	SearchIndexKey string

	// LLMProvider + LLMAPIKey configure the default chat model provider.
	LLMProvider string
	LLMAPIKey   string

	// GitHubToken + ProductHuntToken authenticate the two API-backed
	// discovery sources (spec.md §4.5); arXiv's Atom feed needs none.
	GitHubToken      string
	ProductHuntToken string

	// MaxConcurrentNodes is the execution engine's per-run concurrency cap C.
	MaxConcurrentNodes int

	// NodeReentryCap bounds control-edge loop re-entries before
	// LoopBudgetExceeded (spec.md §4.3, default 32).
	NodeReentryCap int

	// QuotaDefaultPerDay is the default daily execution quota for new users.
	QuotaDefaultPerDay int

	// TokenLifetime is informational only: the identity service that issues
	// bearer tokens is external (spec.md §6 Auth) and this subsystem only
	// validates them. The value is loaded here but no other package reads it.
	TokenLifetime time.Duration

	// JWKSURL is where the external identity service publishes verification
	// keys for bearer tokens.
	JWKSURL string

	// CheckpointEvery batches checkpoint persistence every K node
	// completions instead of after every single one (spec.md §4.3).
	CheckpointEvery int

	// Env selects the zap logger profile: "production" (JSON, info level)
	// or "development" (console, debug level, caller info).
	Env string

	// LogLevel overrides the profile's default level when set (e.g.
	// "debug", "warn").
	LogLevel string
}

// Load reads configuration from the environment, optionally pre-populated
// from a local .env file for development (mirrors kadirpekel-hector's use
// of godotenv rather than a config-file framework).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseDriver:     getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:        getEnv("DATABASE_DSN", "agentgraph.db"),
		BrokerAddr:         getEnv("BROKER_ADDR", "localhost:6379"),
		BrokerPassword:     getEnv("BROKER_PASSWORD", ""),
		BrokerDB:           getEnvInt("BROKER_DB", 0),
		SearchIndexURL:     getEnv("SEARCH_INDEX_URL", ""),
		SearchIndexKey:     getEnv("SEARCH_INDEX_KEY", ""),
		LLMProvider:        getEnv("LLM_PROVIDER", "anthropic"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		GitHubToken:        getEnv("GITHUB_TOKEN", ""),
		ProductHuntToken:   getEnv("PRODUCTHUNT_TOKEN", ""),
		MaxConcurrentNodes: getEnvInt("MAX_CONCURRENT_NODES", 8),
		NodeReentryCap:     getEnvInt("NODE_REENTRY_CAP", 32),
		QuotaDefaultPerDay: getEnvInt("QUOTA_DEFAULT_PER_DAY", 50),
		TokenLifetime:      getEnvDuration("TOKEN_LIFETIME", time.Hour),
		JWKSURL:            getEnv("JWKS_URL", ""),
		CheckpointEvery:    getEnvInt("CHECKPOINT_EVERY", 1),
		Env:                getEnv("ENV", "production"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
	}

	if cfg.DatabaseDriver != "mysql" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
