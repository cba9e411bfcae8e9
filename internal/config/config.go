// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Clock modes.
const (
	ClockWall   = "wall"
	ClockManual = "manual"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the record store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// PostgresDSN is the connection string used by the postgres driver.
	PostgresDSN string `koanf:"postgres_dsn"`

	// Deployer is the genesis administrator of every component.
	Deployer string `koanf:"deployer"`

	// ClockMode selects the height source: wall or manual.
	ClockMode string `koanf:"clock_mode"`

	// BlockIntervalMS is the wall time per height in wall mode.
	BlockIntervalMS int `koanf:"block_interval_ms"`

	// RatingMin and RatingMax bound accepted feedback ratings, inclusive.
	RatingMin uint32 `koanf:"rating_min"`
	RatingMax uint32 `koanf:"rating_max"`

	// AverageRounding is truncate or half_up.
	AverageRounding string `koanf:"average_rounding"`

	// ExpirationReason is recorded when a certification expires.
	ExpirationReason string `koanf:"expiration_reason"`

	// SupersedeOnIssue deactivates a facility's current certification when a
	// new one is issued.
	SupersedeOnIssue bool `koanf:"supersede_on_issue"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		StoreDriver:      DriverMemory,
		SQLitePath:       "data/accessreg.db",
		Deployer:         "deployer",
		ClockMode:        ClockWall,
		BlockIntervalMS:  1000,
		RatingMin:        1,
		RatingMax:        5,
		AverageRounding:  "truncate",
		ExpirationReason: "Certification expired",
		SupersedeOnIssue: true,
	}
}

// Validate checks field values and their combinations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Deployer) == "" {
		return fmt.Errorf("%w: deployer must not be empty", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite driver", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch c.ClockMode {
	case ClockManual:
	case ClockWall:
		if c.BlockIntervalMS <= 0 {
			return fmt.Errorf("%w: block_interval_ms must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown clock_mode %q", ErrInvalidConfig, c.ClockMode)
	}
	if c.RatingMin == 0 || c.RatingMax < c.RatingMin {
		return fmt.Errorf("%w: rating scale %d..%d", ErrInvalidConfig, c.RatingMin, c.RatingMax)
	}
	switch c.AverageRounding {
	case "truncate", "half_up":
	default:
		return fmt.Errorf("%w: unknown average_rounding %q", ErrInvalidConfig, c.AverageRounding)
	}
	if strings.TrimSpace(c.ExpirationReason) == "" {
		return fmt.Errorf("%w: expiration_reason must not be empty", ErrInvalidConfig)
	}
	return nil
}

// DSN returns the data source for the configured store driver.
func (c *Config) DSN() string {
	switch c.StoreDriver {
	case DriverSQLite:
		return c.SQLitePath
	case DriverPostgres:
		return c.PostgresDSN
	default:
		return ""
	}
}
