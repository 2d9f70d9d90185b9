// Package config loads surveyor settings from a YAML file and SURVEYOR_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dlovans/surveyor/pkg/survey"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SURVEYOR_"

// Config holds runtime settings. An empty CatalogPath means the embedded
// questionnaire; an empty DSN means answers come from a fixture file.
type Config struct {
	CatalogPath    string        `yaml:"catalog_path"`
	DSN            string        `yaml:"dsn"`
	SnapshotPolicy string        `yaml:"snapshot_policy" validate:"oneof=latest first"`
	LockTimeout    time.Duration `yaml:"lock_timeout" validate:"gte=0"`
	AuditWorkers   int           `yaml:"audit_workers" validate:"gte=1,lte=64"`
	LogLevel       string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string        `yaml:"log_format" validate:"oneof=text json"`
	MetricsAddr    string        `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

func Default() Config {
	return Config{
		SnapshotPolicy: "latest",
		LockTimeout:    5 * time.Second,
		AuditWorkers:   4,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

var validate = validator.New()

// Load starts from defaults, applies the file at path (if any and if it exists)
// and then the environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg, getenv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // defaults apply
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config, getenv func(string) string) error {
	str := map[string]*string{
		"CATALOG_PATH":    &cfg.CatalogPath,
		"DSN":             &cfg.DSN,
		"SNAPSHOT_POLICY": &cfg.SnapshotPolicy,
		"LOG_LEVEL":       &cfg.LogLevel,
		"LOG_FORMAT":      &cfg.LogFormat,
		"METRICS_ADDR":    &cfg.MetricsAddr,
	}
	for key, dst := range str {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := getenv(EnvPrefix + "LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sLOCK_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.LockTimeout = d
	}
	if v := getenv(EnvPrefix + "AUDIT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sAUDIT_WORKERS: %w", EnvPrefix, err)
		}
		cfg.AuditWorkers = n
	}
	return nil
}

func (c Config) Validate() error {
	return validate.Struct(c)
}

// Policy returns the parsed snapshot policy.
func (c Config) Policy() survey.SnapshotPolicy {
	p, err := survey.ParseSnapshotPolicy(c.SnapshotPolicy)
	if err != nil {
		return survey.PolicyLatest
	}
	return p
}

// Logger builds the configured handler writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func level(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
