// Package config loads host configuration from the environment and
// per-jurisdiction profiles from YAML. The production flag defaults to
// true: a host that forgets to configure its mode runs with debug
// commands locked, not unlocked.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Host holds the environment-driven configuration of one host process.
type Host struct {
	// Production selects the gate mode. Fail-closed default.
	Production bool `env:"REELCORE_PRODUCTION" envDefault:"true"`

	// MasterSeed pins the deterministic provider's seed minting for lab
	// reproducibility. Unset means fresh random seeds, which is the only
	// acceptable mode in production.
	MasterSeed *int64 `env:"REELCORE_MASTER_SEED"`

	LogLevel string `env:"REELCORE_LOG_LEVEL" envDefault:"info"`

	// Jurisdiction names the profile to load from ProfilesDir, empty for
	// hosts running without one.
	Jurisdiction string `env:"REELCORE_JURISDICTION"`
	ProfilesDir  string `env:"REELCORE_PROFILES_DIR" envDefault:"profiles"`

	TelemetryEnabled bool   `env:"REELCORE_TELEMETRY" envDefault:"false"`
	OTLPEndpoint     string `env:"REELCORE_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPInsecure     bool   `env:"REELCORE_OTLP_INSECURE" envDefault:"false"`
}

// Load parses the host configuration from environment variables and
// validates it.
func Load() (*Host, error) {
	var cfg Host
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (h *Host) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(h.LogLevel)); err != nil {
		return fmt.Errorf("config: log level %q: %w", h.LogLevel, err)
	}
	if h.TelemetryEnabled && h.OTLPEndpoint == "" {
		return errors.New("config: telemetry enabled without an OTLP endpoint")
	}
	if h.Production && h.MasterSeed != nil {
		return errors.New("config: a pinned master seed is not allowed in production")
	}
	return nil
}
