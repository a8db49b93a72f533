package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"trading-console/src/models"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file. They mirror the console's
// deployment inputs: demo switch, backend base URL and a pre-seeded token.
const (
	EnvDemoMode = "UI_DEMO_MODE"
	EnvAPIURL   = "API_URL"
	EnvAPIToken = "API_TOKEN"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config from a YAML or TOML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if isTOML(configPath) {
		if err := toml.Unmarshal(data, &modelConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &modelConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Environment wins over the file, defaults fill the gaps
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default returns a validated configuration built only from defaults and the environment.
func Default() (*Config, error) {
	config := &Config{MConfig: &models.MConfig{}}
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyEnv overrides stream settings from the environment. lookup is os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDemoMode); ok && strings.TrimSpace(v) != "" {
		demo, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvDemoMode, v, err)
		}
		c.Stream.DemoMode = demo
	}
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.Stream.APIBase = v
	}
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		c.Stream.Token = v
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every zero value that has a sensible default
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "trading-console"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.GrpcPort == 0 {
		c.GrpcPort = 50051
	}

	// Stream
	if c.Stream.APIBase == "" {
		c.Stream.APIBase = "http://127.0.0.1:8000/api"
	}
	c.Stream.APIBase = strings.TrimRight(c.Stream.APIBase, "/")
	if c.Stream.ReconnectDelayMs == 0 {
		c.Stream.ReconnectDelayMs = 5000
	}
	if c.Stream.Instrument == "" {
		c.Stream.Instrument = "TQBR:SBER"
	}
	if c.Stream.Timeframe == "" {
		c.Stream.Timeframe = "1m"
	}

	// Synthetic feed
	if c.Synthetic.BasePrice == 0 {
		c.Synthetic.BasePrice = 270.0
	}
	if c.Synthetic.TickIntervalMs == 0 {
		c.Synthetic.TickIntervalMs = 1000
	}

	// Storage
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		c.Storage.DBPath = "trading-console.db"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 7
	}

	// Query cache
	if c.Cache.StaleTimeMs == 0 {
		c.Cache.StaleTimeMs = 60_000
	}
	if c.Cache.PollIntervalMs == 0 {
		c.Cache.PollIntervalMs = 10_000
	}

	// Network
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = "trading-console/1.0"
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort < 0 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}

	// Validate Stream configuration
	if !c.Stream.DemoMode {
		u, err := url.Parse(c.Stream.APIBase)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("api base must be an absolute http(s) URL, got %q", c.Stream.APIBase)
		}
	}
	if c.Stream.ReconnectDelayMs <= 0 {
		return fmt.Errorf("reconnect delay must be greater than 0")
	}
	if c.Stream.Instrument == "" || c.Stream.Timeframe == "" {
		return fmt.Errorf("instrument and timeframe cannot be empty")
	}

	// Validate Synthetic configuration
	if c.Synthetic.TickIntervalMs <= 0 {
		return fmt.Errorf("synthetic tick interval must be greater than 0")
	}
	if c.Synthetic.BasePrice <= 0 {
		return fmt.Errorf("synthetic base price must be positive")
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	case "none":
	default:
		return fmt.Errorf("unknown database type: %s", c.Storage.DBType)
	}

	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}

	// Validate Cache configuration
	if c.Cache.StaleTimeMs < 0 || c.Cache.PollIntervalMs < 0 {
		return fmt.Errorf("cache timings cannot be negative")
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration, format chosen by extension
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct
	var data []byte
	var err error
	if isTOML(configPath) {
		data, err = toml.Marshal(c.MConfig)
	} else {
		data, err = yaml.Marshal(c.MConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
