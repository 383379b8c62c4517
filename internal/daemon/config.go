// Package daemon manages the QuizHub daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quizhub/quizhub/internal/app/progression"
	"github.com/quizhub/quizhub/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	API         APIConfig         `toml:"api"`
	Storage     StorageConfig     `toml:"storage"`
	Progression ProgressionConfig `toml:"progression"`
	Logging     LoggingConfig     `toml:"logging"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// StorageConfig controls where the database lives.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// ProgressionConfig tunes the streak tracker and title ladder.
type ProgressionConfig struct {
	Timezone   string             `toml:"timezone"`
	MaxFreezes int                `toml:"max_freezes"`
	Strict     bool               `toml:"strict"`
	MaxRetries int                `toml:"max_retries"`
	Titles     []domain.TitleRank `toml:"titles"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or console
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8787,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Dir: quizhubHome(),
		},
		Progression: ProgressionConfig{
			Timezone:   "UTC",
			MaxFreezes: progression.DefaultPolicy().MaxFreezes,
			MaxRetries: progression.DefaultMaxRetries,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from ~/.quizhub/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(quizhubHome(), "config.toml"))
}

// LoadConfigFile reads config from path. A missing file yields defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.quizhub/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(quizhubHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks cross-field constraints the TOML decoder cannot.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Ladder(); err != nil {
		errs = append(errs, err)
	}
	if c.Progression.MaxFreezes < 0 {
		errs = append(errs, fmt.Errorf("progression.max_freezes must be >= 0, got %d", c.Progression.MaxFreezes))
	}
	if c.Progression.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("progression.max_retries must be >= 1, got %d", c.Progression.MaxRetries))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Location loads the configured timezone used to decide "today".
func (c Config) Location() (*time.Location, error) {
	if c.Progression.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Progression.Timezone)
	if err != nil {
		return nil, fmt.Errorf("progression.timezone: %w", err)
	}
	return loc, nil
}

// Ladder builds the title ladder, or the default one when none is configured.
func (c Config) Ladder() (*progression.Ladder, error) {
	if len(c.Progression.Titles) == 0 {
		return progression.DefaultLadder(), nil
	}
	return progression.NewLadder(c.Progression.Titles)
}

// Policy returns the streak policy.
func (c Config) Policy() progression.Policy {
	return progression.Policy{
		MaxFreezes: c.Progression.MaxFreezes,
		Strict:     c.Progression.Strict,
	}
}

// NewLogger builds a zap logger from the logging section. verbose forces
// debug level.
func (c Config) NewLogger(verbose bool) (*zap.Logger, error) {
	var zcfg zap.Config
	if c.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if c.Logging.Level != "" {
		parsed, err := zapcore.ParseLevel(c.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		level = parsed
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

// quizhubHome returns the QuizHub data directory.
func quizhubHome() string {
	if env := os.Getenv("QUIZHUB_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".quizhub")
}

// Home is exported for use by other packages.
func Home() string {
	return quizhubHome()
}
