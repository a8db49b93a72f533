package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name" toml:"name"`
	Host      string           `yaml:"host" toml:"host"`
	Port      int              `yaml:"port" toml:"port"`
	LogLevel  string           `yaml:"log_level" toml:"log_level"`
	GrpcHost  string           `yaml:"grpc_host" toml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port" toml:"grpc_port"`
	Stream    MStreamConfig    `yaml:"stream" toml:"stream"`
	Synthetic MSyntheticConfig `yaml:"synthetic" toml:"synthetic"`
	Storage   MStorageConfig   `yaml:"storage" toml:"storage"`
	Network   MNetworkConfig   `yaml:"network" toml:"network"`
	Cache     MCacheConfig     `yaml:"cache" toml:"cache"`
	Tracing   MTracingConfig   `yaml:"tracing" toml:"tracing"`
}

// MStreamConfig selects and addresses the event source.
// DemoMode is resolved once at startup and never re-read.
type MStreamConfig struct {
	DemoMode         bool   `yaml:"demo_mode" toml:"demo_mode"`
	APIBase          string `yaml:"api_base" toml:"api_base"`
	Token            string `yaml:"token" toml:"token"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms" toml:"reconnect_delay_ms"`
	Instrument       string `yaml:"instrument" toml:"instrument"`
	Timeframe        string `yaml:"timeframe" toml:"timeframe"`
}

type MSyntheticConfig struct {
	BasePrice      float64 `yaml:"base_price" toml:"base_price"`
	TickIntervalMs int     `yaml:"tick_interval_ms" toml:"tick_interval_ms"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type" toml:"db_type"`
	DBPath             string `yaml:"db_path" toml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string" toml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days" toml:"retention_days"`
}

type MNetworkConfig struct {
	RequestTimeout int      `yaml:"timeout" toml:"timeout"`
	MaxRetries     int      `yaml:"retries" toml:"retries"`
	UserAgent      string   `yaml:"user_agent" toml:"user_agent"`
	Proxies        []string `yaml:"proxies" toml:"proxies"`
}

type MCacheConfig struct {
	RefetchOnInvalidate bool `yaml:"refetch_on_invalidate" toml:"refetch_on_invalidate"`
	StaleTimeMs         int  `yaml:"stale_time_ms" toml:"stale_time_ms"`
	PollIntervalMs      int  `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
}

type MTracingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// -----------------------------------------------------------------------------

// GetLogLevel lets the logger read the level without importing config.
func (c *MConfig) GetLogLevel() string {
	if c == nil {
		return ""
	}
	return c.LogLevel
}
