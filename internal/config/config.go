package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory       = "memory"
	DriverDisk         = "disk"
	DriverGormSQLite   = "gorm-sqlite"
	DriverGormPostgres = "gorm-postgres"
	DriverPostgres     = "postgres"
	DriverKurrentDB    = "kurrentdb"
)

// Config top-level struct
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
	Commands CommandsConfig `yaml:"commands"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`

	// DSN is the connection string, or the directory for the disk driver.
	DSN string `yaml:"dsn"`

	// SnapshotEvery writes a snapshot every n events; 0 disables snapshots.
	SnapshotEvery uint64 `yaml:"snapshot_every"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CommandsConfig struct {
	Shards     int    `yaml:"shards"`
	Buffer     int    `yaml:"buffer"`
	MaxRetries uint64 `yaml:"max_retries"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store:    StoreConfig{Driver: DriverMemory},
		Log:      LogConfig{Level: "info", Format: "json"},
		Commands: CommandsConfig{Shards: 4, Buffer: 64, MaxRetries: 3},
	}
}

// Load reads the yaml file at path on top of Default and applies the
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FAMILY_STORE_DRIVER"); ok {
		c.Store.Driver = v
	}
	if v, ok := lookup("FAMILY_STORE_DSN"); ok {
		c.Store.DSN = v
	}
	if v, ok := lookup("FAMILY_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("FAMILY_SNAPSHOT_EVERY"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FAMILY_SNAPSHOT_EVERY must be a number (got %q)", v)
		}
		c.Store.SnapshotEvery = n
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory:
	case DriverDisk, DriverGormSQLite, DriverGormPostgres, DriverPostgres, DriverKurrentDB:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if c.Commands.Shards < 1 {
		errs = append(errs, errors.New("commands.shards must be at least 1"))
	}
	if c.Commands.Buffer < 0 {
		errs = append(errs, errors.New("commands.buffer must not be negative"))
	}
	return errors.Join(errs...)
}
