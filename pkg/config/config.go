// Package config loads gateway settings: built-in defaults, then an optional
// TOML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Adapter names accepted by Config.Adapter.
const (
	AdapterNative = "native"
	AdapterMemory = "memory"
	AdapterRemote = "remote"
)

// Native driver names.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "pgx"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POCKETSAVER_"

// Config is the complete gateway configuration.
type Config struct {
	Adapter    string           `toml:"adapter"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
	Native     NativeConfig     `toml:"native"`
	Memory     MemoryConfig     `toml:"memory"`
	Remote     RemoteConfig     `toml:"remote"`
	Statements StatementsConfig `toml:"statements"`
	TableStore TableStoreConfig `toml:"tablestore"`
}

// ServerConfig configures the gateway HTTP server.
type ServerConfig struct {
	Port         string        `toml:"port"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	IdleTimeout  time.Duration `toml:"idle_timeout"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NativeConfig configures the database/sql adapter.
type NativeConfig struct {
	Driver string `toml:"driver"`
	// DSN is a DuckDB path (empty for in-memory) or a PostgreSQL connection string.
	DSN string `toml:"dsn"`
	// Bootstrap creates the entity tables when they do not exist.
	Bootstrap bool `toml:"bootstrap"`
}

// MemoryConfig configures the in-memory adapter.
type MemoryConfig struct {
	Latency time.Duration `toml:"latency"`
}

// RemoteConfig configures the table store adapter.
type RemoteConfig struct {
	URL     string        `toml:"url"`
	APIKey  string        `toml:"api_key"`
	Timeout time.Duration `toml:"timeout"`
}

// StatementsConfig configures statement tracking on the HTTP surface.
type StatementsConfig struct {
	TTL          time.Duration `toml:"ttl"`
	AsyncTimeout time.Duration `toml:"async_timeout"`
}

// TableStoreConfig configures the standalone table store emulator.
type TableStoreConfig struct {
	Port   string `toml:"port"`
	APIKey string `toml:"api_key"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Adapter: AdapterMemory,
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Log:    LogConfig{Level: "info", Format: "text"},
		Native: NativeConfig{Driver: DriverDuckDB, Bootstrap: true},
		Remote: RemoteConfig{Timeout: 30 * time.Second},
		Statements: StatementsConfig{
			TTL:          time.Hour,
			AsyncTimeout: 5 * time.Minute,
		},
		TableStore: TableStoreConfig{Port: "54321"},
	}
}

// Load builds the configuration from defaults, the TOML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from the environment. The unprefixed names are the
// ones the Node backend read.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(dst *string, names ...string) {
		for _, n := range names {
			if v, ok := lookup(n); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	dur := func(dst *time.Duration, name string) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = d
		return nil
	}

	str(&c.Adapter, EnvPrefix+"ADAPTER")
	str(&c.Server.Port, EnvPrefix+"PORT", "PORT")
	str(&c.Log.Level, EnvPrefix+"LOG_LEVEL")
	str(&c.Log.Format, EnvPrefix+"LOG_FORMAT")
	str(&c.Native.Driver, EnvPrefix+"NATIVE_DRIVER")
	str(&c.Native.DSN, EnvPrefix+"NATIVE_DSN", "DATABASE_URL")
	str(&c.Remote.URL, EnvPrefix+"REMOTE_URL", "SUPABASE_URL")
	str(&c.Remote.APIKey, EnvPrefix+"REMOTE_API_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	str(&c.TableStore.Port, EnvPrefix+"TABLESTORE_PORT")
	str(&c.TableStore.APIKey, EnvPrefix+"TABLESTORE_API_KEY")

	if v, ok := lookup(EnvPrefix + "NATIVE_BOOTSTRAP"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sNATIVE_BOOTSTRAP: %w", EnvPrefix, err)
		}
		c.Native.Bootstrap = b
	}
	for name, dst := range map[string]*time.Duration{
		EnvPrefix + "MEMORY_LATENCY": &c.Memory.Latency,
		EnvPrefix + "REMOTE_TIMEOUT": &c.Remote.Timeout,
		EnvPrefix + "STATEMENT_TTL":  &c.Statements.TTL,
		EnvPrefix + "ASYNC_TIMEOUT":  &c.Statements.AsyncTimeout,
	} {
		if err := dur(dst, name); err != nil {
			return err
		}
	}
	c.Adapter = strings.ToLower(strings.TrimSpace(c.Adapter))
	return nil
}

// Validate checks the settings the selected adapter depends on.
func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterMemory:
	case AdapterNative:
		if c.Native.Driver != DriverDuckDB && c.Native.Driver != DriverPostgres {
			return fmt.Errorf("unknown native driver %q (want %s or %s)", c.Native.Driver, DriverDuckDB, DriverPostgres)
		}
		if c.Native.Driver == DriverPostgres && c.Native.DSN == "" {
			return fmt.Errorf("native driver %s requires a DSN", DriverPostgres)
		}
	case AdapterRemote:
		if c.Remote.URL == "" {
			return fmt.Errorf("remote adapter requires a table store URL")
		}
	default:
		return fmt.Errorf("unknown adapter %q (want %s, %s or %s)", c.Adapter, AdapterNative, AdapterMemory, AdapterRemote)
	}
	if c.Memory.Latency < 0 {
		return fmt.Errorf("memory latency must not be negative")
	}
	return nil
}
