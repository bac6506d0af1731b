// Package config loads redrec settings: a YAML file, a .env file and
// REDREC_* environment overrides, and collection definitions given inline or
// as CUE files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/redrec/internal/record"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "redrec.yaml"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	Store          StoreConfig                 `yaml:"store"`
	Log            LogConfig                   `yaml:"log"`
	WriteMode      string                      `yaml:"write_mode"` // await | async
	CollectionsDir string                      `yaml:"collections_dir"`
	Collections    map[string]CollectionConfig `yaml:"collections"`
}

type StoreConfig struct {
	Driver       string        `yaml:"driver"`
	Path         string        `yaml:"path"` // sqlite database file
	Addr         string        `yaml:"addr"` // redis host:port
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// CollectionConfig declares the key fields of one collection.
type CollectionConfig struct {
	PrimaryKeys []string `yaml:"primary_keys"`
	LookupKeys  []string `yaml:"lookup_keys"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:      DriverSQLite,
			Path:        "redrec.db",
			Addr:        "localhost:6379",
			DialTimeout: 5 * time.Second,
		},
		Log:         LogConfig{Level: "info", Format: "text"},
		WriteMode:   "await",
		Collections: map[string]CollectionConfig{},
	}
}

// Load reads the YAML file at path over the defaults. An empty path tries
// DefaultFile and falls back to defaults when it does not exist. Unknown
// keys are rejected. A relative collections_dir is resolved against the
// file's directory and its CUE definitions are merged in.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
		path = ""
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyDefaults(cfg)

	if cfg.CollectionsDir != "" {
		dir := cfg.CollectionsDir
		if !filepath.IsAbs(dir) && path != "" {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		defs, err := LoadCollections(dir)
		if err != nil {
			return nil, err
		}
		if err := cfg.merge(defs); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = d.Store.Driver
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = d.Store.Path
	}
	if cfg.Store.Addr == "" {
		cfg.Store.Addr = d.Store.Addr
	}
	if cfg.Store.DialTimeout <= 0 {
		cfg.Store.DialTimeout = d.Store.DialTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
	if cfg.WriteMode == "" {
		cfg.WriteMode = d.WriteMode
	}
	if cfg.Collections == nil {
		cfg.Collections = map[string]CollectionConfig{}
	}
}

func (c *Config) merge(defs map[string]CollectionConfig) error {
	for name, def := range defs {
		if _, dup := c.Collections[name]; dup {
			return fmt.Errorf("collection %q defined both inline and in %s", name, c.CollectionsDir)
		}
		c.Collections[name] = def
	}
	return nil
}

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from REDREC_* variables read through lookup
// (os.LookupEnv when nil).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("REDREC_STORE_DRIVER", &c.Store.Driver)
	str("REDREC_STORE_ADDR", &c.Store.Addr)
	str("REDREC_STORE_PATH", &c.Store.Path)
	str("REDREC_STORE_USERNAME", &c.Store.Username)
	str("REDREC_STORE_PASSWORD", &c.Store.Password)
	str("REDREC_LOG_LEVEL", &c.Log.Level)
	str("REDREC_LOG_FORMAT", &c.Log.Format)
	str("REDREC_WRITE_MODE", &c.WriteMode)

	if v, ok := lookup("REDREC_STORE_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDREC_STORE_DB: %q is not a number", v)
		}
		c.Store.DB = db
	}
	return nil
}

// Validate checks values that Load cannot default.
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		problems = append(problems, fmt.Sprintf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.DB < 0 {
		problems = append(problems, "store.db: must not be negative")
	}
	if _, err := c.LogLevel(); err != nil {
		problems = append(problems, "log.level: "+err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("log.format: %q (want text or json)", c.Log.Format))
	}
	if _, err := c.Mode(); err != nil {
		problems = append(problems, "write_mode: "+err.Error())
	}
	for _, name := range c.CollectionNames() {
		if strings.TrimSpace(name) == "" {
			problems = append(problems, "collections: blank collection name")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, err
	}
	return lvl, nil
}

// Mode parses WriteMode.
func (c *Config) Mode() (record.WriteMode, error) {
	return record.ParseWriteMode(c.WriteMode)
}

// CollectionNames returns the configured collection names, sorted.
func (c *Config) CollectionNames() []string {
	names := make([]string, 0, len(c.Collections))
	for name := range c.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
