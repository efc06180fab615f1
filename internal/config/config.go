// Package config loads Proxima's configuration: the positional
// username/password_hash/data_path/backend_url/port arguments spec.md §6
// names, plus the ambient YAML profile and environment overrides every
// repo in the pack carries regardless.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort     = 8082
	minValidPort    = 1025
	maxValidPort    = 65534
	DefaultSaveEvery = 60 * time.Second
)

// Config is Proxima's full runtime configuration.
type Config struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"`
	DataPath     string        `yaml:"data_path"`
	BackendURL   string        `yaml:"backend_url"`
	Port         int           `yaml:"port"`
	SearchBase   string        `yaml:"search_base"`
	PyExecBroker string        `yaml:"pyexec_broker"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenExpiry  time.Duration `yaml:"token_expiry"`
	SaveEvery    time.Duration `yaml:"save_every"`
	MediaDir     string        `yaml:"media_dir"`
	Logging      LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds the configured log level. cmd/proxima installs its
// slog handler at info level before the configuration is loaded and does
// not read this value.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML profile file, applies environment overrides and
// defaults, and validates the result, matching the teacher's
// Load/applyEnvOverrides/applyDefaults/validateConfig pipeline.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromPositionalArgs builds a Config from spec.md §6's five positional
// CLI arguments, skipping the YAML profile entirely.
func FromPositionalArgs(username, passwordHash, dataPath, backendURL string, port int) (*Config, error) {
	cfg := &Config{
		Username:     username,
		PasswordHash: passwordHash,
		DataPath:     dataPath,
		BackendURL:   backendURL,
		Port:         port,
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.SaveEvery == 0 {
		cfg.SaveEvery = DefaultSaveEvery
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "./data"
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = cfg.DataPath + "/media"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PROXIMA_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("PROXIMA_BACKEND_URL")); v != "" {
		cfg.BackendURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PROXIMA_DATA_PATH")); v != "" {
		cfg.DataPath = v
	}
	if v := strings.TrimSpace(os.Getenv("PROXIMA_JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("PROXIMA_PYEXEC_BROKER")); v != "" {
		cfg.PyExecBroker = v
	}
	if v := strings.TrimSpace(os.Getenv("PROXIMA_SEARCH_BASE")); v != "" {
		cfg.SearchBase = v
	}
}

// ValidationError collects every configuration problem found, matching
// the teacher's ConfigValidationError shape.
type ValidationError struct{ Issues []string }

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string
	if strings.TrimSpace(cfg.Username) == "" {
		issues = append(issues, "username is required")
	}
	if strings.TrimSpace(cfg.PasswordHash) == "" {
		issues = append(issues, "password_hash is required")
	}
	if cfg.Port < minValidPort || cfg.Port > maxValidPort {
		issues = append(issues, fmt.Sprintf("port %d out of range [%d, %d]", cfg.Port, minValidPort, maxValidPort))
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
