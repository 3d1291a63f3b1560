// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty until DB is wired.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis address for the resolved-profile cache; empty disables the cache.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// JWTSecret is the shared HS256 secret for verifying bearer tokens on mutating endpoints.
	// Empty disables auth (development only; rejected when Env is production).
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the expected iss claim (e.g. "iqc-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim (e.g. "iqc-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// ApprovalGateEnabled forces every evaluated run to status "pending" so that only a
	// human transitions it; when false the legacy derivation from autoResult applies.
	ApprovalGateEnabled bool `mapstructure:"APPROVAL_GATE_ENABLED"`
	// ProfileConfigEnabled enables profile/binding resolution; when false every
	// evaluation uses the built-in default profile.
	ProfileConfigEnabled bool `mapstructure:"PROFILE_CONFIG_ENABLED"`

	// SideTolerance is the z band around the mean classified as "on" (default 0.05).
	SideTolerance float64 `mapstructure:"SIDE_TOLERANCE"`
	// RollingMinPoints is the minimum eligible points for a rolling limits proposal (default 20).
	RollingMinPoints int `mapstructure:"ROLLING_MIN_POINTS"`
	// RollingMinSpanDays is the minimum day span a rolling window must cover (default 10).
	RollingMinSpanDays int `mapstructure:"ROLLING_MIN_SPAN_DAYS"`
	// RollingExcludeRules is a comma-separated list of rule codes whose violations
	// exclude a point from rolling re-estimation.
	RollingExcludeRules string `mapstructure:"ROLLING_EXCLUDE_RULES"`

	// ProfileCacheTTL is the TTL for cached resolved profiles (e.g. "5m").
	ProfileCacheTTL string `mapstructure:"PROFILE_CACHE_TTL"`

	// OTLPEndpoint is the OTLP gRPC endpoint for traces/metrics; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "iqc-auth")
	v.SetDefault("JWT_AUDIENCE", "iqc-api")
	v.SetDefault("APPROVAL_GATE_ENABLED", true)
	v.SetDefault("PROFILE_CONFIG_ENABLED", true)
	v.SetDefault("SIDE_TOLERANCE", 0.05)
	v.SetDefault("ROLLING_MIN_POINTS", 20)
	v.SetDefault("ROLLING_MIN_SPAN_DAYS", 10)
	v.SetDefault("ROLLING_EXCLUDE_RULES", "1-3s,2-2s,R-4s,4-1s,10x,1-2s")
	v.SetDefault("PROFILE_CACHE_TTL", "5m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTSecret == "" && cfg.Env == "production" {
		return nil, errors.New("config: JWT_SECRET must be set when APP_ENV=production")
	}
	if cfg.SideTolerance < 0 {
		return nil, fmt.Errorf("config: SIDE_TOLERANCE must be >= 0, got %v", cfg.SideTolerance)
	}
	if cfg.RollingMinPoints < 1 {
		return nil, fmt.Errorf("config: ROLLING_MIN_POINTS must be >= 1, got %d", cfg.RollingMinPoints)
	}
	if cfg.RollingMinSpanDays < 0 {
		return nil, fmt.Errorf("config: ROLLING_MIN_SPAN_DAYS must be >= 0, got %d", cfg.RollingMinSpanDays)
	}

	return &cfg, nil
}

// ExcludedRuleCodes parses RollingExcludeRules into a trimmed, deduplicated slice.
func (c *Config) ExcludedRuleCodes() []string {
	parts := strings.Split(c.RollingExcludeRules, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// CacheTTL parses ProfileCacheTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.ProfileCacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
