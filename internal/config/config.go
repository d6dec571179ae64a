package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the war room engine.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Policy  PolicyConfig  `yaml:"policy"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// OracleConfig configures the external text-generation service. An empty API
// key disables the oracle; the engine then runs fully degraded.
type OracleConfig struct {
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the entity store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	Path   string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PolicyConfig holds the tunable coordination knobs. These encode
// backpressure policy, not fixed domain law.
type PolicyConfig struct {
	// ReviewEvery wakes the commander on every Nth finding per team even
	// absent an explicit escalation signal.
	ReviewEvery int `yaml:"reviewEvery"`
	// MaxActiveActions bounds simultaneously non-completed actions per
	// incident; proposals beyond the cap are dropped, not queued.
	MaxActiveActions int `yaml:"maxActiveActions"`
	// CollabMinFindings is the per-team finding count required to qualify
	// for the collaboration protocol.
	CollabMinFindings int `yaml:"collabMinFindings"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WARROOM_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    120 * time.Second,
			GracefulTimeout: 10 * time.Second,
		},
		Oracle: OracleConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
			Timeout: 45 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "warroom.db",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Policy: PolicyConfig{
			ReviewEvery:       3,
			MaxActiveActions:  10,
			CollabMinFindings: 3,
		},
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Policy.ReviewEvery < 1 {
		return fmt.Errorf("policy.reviewEvery must be >= 1, got %d", c.Policy.ReviewEvery)
	}
	if c.Policy.MaxActiveActions < 1 {
		return fmt.Errorf("policy.maxActiveActions must be >= 1, got %d", c.Policy.MaxActiveActions)
	}
	if c.Policy.CollabMinFindings < 1 {
		return fmt.Errorf("policy.collabMinFindings must be >= 1, got %d", c.Policy.CollabMinFindings)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WARROOM_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("WARROOM_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("WARROOM_ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("WARROOM_ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("WARROOM_ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("WARROOM_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Oracle.Timeout = d
		}
	}
	if v := os.Getenv("WARROOM_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("WARROOM_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("WARROOM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WARROOM_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("WARROOM_POLICY_REVIEW_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Policy.ReviewEvery = n
		}
	}
	if v := os.Getenv("WARROOM_POLICY_MAX_ACTIVE_ACTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Policy.MaxActiveActions = n
		}
	}
	if v := os.Getenv("WARROOM_POLICY_COLLAB_MIN_FINDINGS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Policy.CollabMinFindings = n
		}
	}
}
