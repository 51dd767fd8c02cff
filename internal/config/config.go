package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxChunkSize is the hard cap on rows fetched and applied per batch.
const MaxChunkSize = 10000

// Config holds all configuration for the sync tool
type Config struct {
	Server ServerConfig `yaml:"server"`
	Sync   SyncConfig   `yaml:"sync"`
}

// ServerConfig holds the PostgreSQL server connection settings. Source and
// destination are two databases on the same server, reached with the same
// credentials.
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	SSLMode       string `yaml:"ssl_mode"` // disable, prefer, require, verify-ca, verify-full
	SourceDB      string `yaml:"source_db"`
	DestinationDB string `yaml:"destination_db"`
}

// SyncConfig holds sync behavior settings
type SyncConfig struct {
	Table          string `yaml:"table"`
	OrderingColumn string `yaml:"ordering_column"` // monotonic bigint epoch-millis column
	ChunkSize      int    `yaml:"chunk_size"`      // rows per fetch/upsert batch
	WindowSize     int    `yaml:"window_size"`     // target rows per window (default: chunk_size)
	RowsPerSlice   int64  `yaml:"rows_per_slice"`  // target rows per slice
	DelaySeconds   int    `yaml:"delay_seconds"`   // continuous mode sleep between passes
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes reads configuration from YAML bytes.
func LoadBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// New returns a Config with defaults applied, for flag-driven invocations
// that carry no config file.
func New() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in defaults for unset fields. It is idempotent and is
// re-applied after CLI flag overrides.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5432
	}
	if c.Server.SSLMode == "" {
		c.Server.SSLMode = "prefer"
	}
	if c.Sync.OrderingColumn == "" {
		c.Sync.OrderingColumn = "updated"
	}
	if c.Sync.ChunkSize == 0 {
		c.Sync.ChunkSize = 1000
	}
	if c.Sync.WindowSize == 0 {
		c.Sync.WindowSize = c.Sync.ChunkSize
	}
	if c.Sync.RowsPerSlice == 0 {
		c.Sync.RowsPerSlice = 10_000_000
	}
	if c.Sync.DelaySeconds == 0 {
		c.Sync.DelaySeconds = 5
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.SourceDB == "" {
		return fmt.Errorf("invalid config: source database is required")
	}
	if c.Server.DestinationDB == "" {
		return fmt.Errorf("invalid config: destination database is required")
	}
	if c.Server.SourceDB == c.Server.DestinationDB {
		return fmt.Errorf("invalid config: source and destination databases must differ")
	}
	if c.Server.User == "" {
		return fmt.Errorf("invalid config: user is required")
	}
	if c.Sync.Table == "" {
		return fmt.Errorf("invalid config: table is required")
	}
	if c.Sync.ChunkSize < 1 || c.Sync.ChunkSize > MaxChunkSize {
		return fmt.Errorf("invalid config: chunksize must be between 1 and %d", MaxChunkSize)
	}
	if c.Sync.WindowSize < c.Sync.ChunkSize {
		return fmt.Errorf("invalid config: window_size must be >= chunk_size")
	}
	if c.Sync.RowsPerSlice < 1 {
		return fmt.Errorf("invalid config: rows_per_slice must be positive")
	}
	if c.Sync.DelaySeconds < 1 {
		return fmt.Errorf("invalid config: delay_seconds must be positive")
	}
	switch c.Server.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid config: unknown ssl_mode %q", c.Server.SSLMode)
	}
	return nil
}

// SourceDSN returns the source database connection string
func (c *Config) SourceDSN() string {
	return c.buildDSN(c.Server.SourceDB)
}

// DestinationDSN returns the destination database connection string
func (c *Config) DestinationDSN() string {
	return c.buildDSN(c.Server.DestinationDB)
}

// buildDSN builds a PostgreSQL connection URI with URL-encoded credentials
func (c *Config) buildDSN(database string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Server.User, c.Server.Password),
		Host:   fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port),
		Path:   "/" + database,
	}
	q := url.Values{}
	q.Set("sslmode", c.Server.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Sanitized returns a copy of the config with sensitive fields redacted
func (c *Config) Sanitized() *Config {
	sanitized := *c // shallow copy
	if sanitized.Server.Password != "" {
		sanitized.Server.Password = "[REDACTED]"
	}
	return &sanitized
}
