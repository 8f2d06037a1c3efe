// Package config loads the caricash service configuration, grounded on
// the platform gateway's YAML config loader (validated defaults, explicit
// auth opt-in for sensitive deployments).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig points the ledger/approval/reconciliation stores at a
// backing Postgres instance.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// ObservabilityConfig toggles the ambient metrics/tracing/logging stack.
type ObservabilityConfig struct {
	ServiceName   string `yaml:"serviceName"`
	Env           string `yaml:"env"`
	Metrics       bool   `yaml:"metrics"`
	Tracing       bool   `yaml:"tracing"`
	LogRequests   bool   `yaml:"logRequests"`
	MetricsPrefix string `yaml:"metricsPrefix"`
}

// AuthConfig controls bearer-token verification on the HTTP surface.
type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HMACSecret     string        `yaml:"hmacSecret"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	ClockSkew      time.Duration `yaml:"clockSkew"`
	enabledSet     bool          `yaml:"-"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled    *bool         `yaml:"enabled"`
		HMACSecret string        `yaml:"hmacSecret"`
		Issuer     string        `yaml:"issuer"`
		Audience   string        `yaml:"audience"`
		ClockSkew  time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		a.Enabled = *raw.Enabled
		a.enabledSet = true
	}
	a.HMACSecret = raw.HMACSecret
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	if raw.ClockSkew != 0 {
		a.ClockSkew = raw.ClockSkew
	}
	return nil
}

// ApprovalConfig carries the §4.7 workflow engine's operational knobs.
type ApprovalConfig struct {
	DefaultExpiryMinutes int           `yaml:"defaultExpiryMinutes"`
	ExpirySweepInterval  time.Duration `yaml:"expirySweepInterval"`
	PolicyFixtureDir     string        `yaml:"policyFixtureDir"`
}

// ReconciliationConfig carries the §4.10 reconciliation engine's schedule.
type ReconciliationConfig struct {
	RunInterval    time.Duration `yaml:"runInterval"`
	WindowOverlap  time.Duration `yaml:"windowOverlap"`
	ArchiveDir     string        `yaml:"archiveDir"`
}

// FraudConfig carries the §4.11/§4.12 fraud evaluator's wiring.
type FraudConfig struct {
	ScoringProviderURL string        `yaml:"scoringProviderURL"`
	ScoringTimeout     time.Duration `yaml:"scoringTimeout"`
}

// RateLimitConfig caps each domain key's post rate (§5 Backpressure). A
// zero RatePerSecond leaves posting unlimited.
type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

// LedgerConfig carries the posting engine's warm-start cache knobs. An
// empty CheckpointDir leaves the in-memory cache in place, which forgets
// every domain key's last hash on restart.
type LedgerConfig struct {
	CheckpointDir string `yaml:"checkpointDir"`
}

// AuditConfig carries the §4.12.a durability-mirror knobs for the event and
// audit sink: a rotating local file copy and a read-only websocket tail
// for ops. Both are additive fan-out, never authoritative.
type AuditConfig struct {
	MirrorFilePath   string `yaml:"mirrorFilePath"`
	MirrorMaxSizeMB  int    `yaml:"mirrorMaxSizeMB"`
	MirrorMaxBackups int    `yaml:"mirrorMaxBackups"`
	MirrorMaxAgeDays int    `yaml:"mirrorMaxAgeDays"`
	TailEnabled      bool   `yaml:"tailEnabled"`
}

// Config is the root caricashd configuration document.
type Config struct {
	ListenAddress  string               `yaml:"listen"`
	ReadTimeout    time.Duration        `yaml:"readTimeout"`
	WriteTimeout   time.Duration        `yaml:"writeTimeout"`
	IdleTimeout    time.Duration        `yaml:"idleTimeout"`
	Database       DatabaseConfig       `yaml:"database"`
	Observability  ObservabilityConfig  `yaml:"observability"`
	Auth           AuthConfig           `yaml:"auth"`
	Approval       ApprovalConfig       `yaml:"approval"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Fraud          FraudConfig          `yaml:"fraud"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit"`
	Ledger         LedgerConfig         `yaml:"ledger"`
	Audit          AuditConfig          `yaml:"audit"`
}

// Load reads and validates the configuration at path. An empty path
// returns the documented defaults (used by tests and local dev).
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Observability: ObservabilityConfig{
			ServiceName:   "caricashd",
			Metrics:       true,
			Tracing:       true,
			LogRequests:   true,
			MetricsPrefix: "caricash",
		},
		Auth: AuthConfig{
			Enabled:    false,
			ClockSkew:  2 * time.Minute,
			enabledSet: true,
		},
		Approval: ApprovalConfig{
			DefaultExpiryMinutes: 4320, // 72h, per §4.7's default SLA.
			ExpirySweepInterval:  time.Minute,
		},
		Reconciliation: ReconciliationConfig{
			RunInterval:   time.Hour,
			WindowOverlap: 5 * time.Minute,
		},
		Fraud: FraudConfig{
			ScoringTimeout: 2 * time.Second,
		},
		Audit: AuditConfig{
			MirrorMaxSizeMB:  100,
			MirrorMaxBackups: 5,
			MirrorMaxAgeDays: 30,
			TailEnabled:      true,
		},
	}
}

// Validate enforces that sensitive deployments (anything with auth
// explicitly configured) do not silently fall back to an open gateway.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmacSecret must be set when auth.enabled is true")
	}
	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		return fmt.Errorf("database.maxIdleConns cannot exceed database.maxOpenConns")
	}
	if cfg.Approval.DefaultExpiryMinutes <= 0 {
		return fmt.Errorf("approval.defaultExpiryMinutes must be positive")
	}
	return nil
}
