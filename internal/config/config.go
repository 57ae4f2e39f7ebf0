package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	FileName = "taskscope.yml"

	BackendREST   = "rest"
	BackendSQLite = "sqlite"
)

// ErrMissingCredentials is returned when the REST backend has no URL or key.
var ErrMissingCredentials = errors.New("store url and key are required; set SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")

// Config models taskscope.yml.
type Config struct {
	Store struct {
		Backend string        `yaml:"backend"`
		URL     string        `yaml:"url"`
		Key     string        `yaml:"key"`
		Timeout time.Duration `yaml:"timeout"`
		Schema  string        `yaml:"schema"`
	} `yaml:"store"`
	Snapshot struct {
		Workspace string `yaml:"workspace"`
	} `yaml:"snapshot"`
	Query struct {
		ScanLimit int `yaml:"scan_limit"`
		PageSize  int `yaml:"page_size"`
		MaxPages  int `yaml:"max_pages"`
	} `yaml:"query"`
	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file or override is present.
func Default() *Config {
	var cfg Config
	cfg.Store.Backend = BackendREST
	cfg.Store.Timeout = 30 * time.Second
	cfg.Store.Schema = "public"
	cfg.Snapshot.Workspace = "."
	cfg.Query.ScanLimit = 100
	cfg.Query.PageSize = 1000
	cfg.Query.MaxPages = 100
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return &cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// FromYAML parses YAML over the defaults. Credentials are checked by Validate
// once environment overrides have been applied.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return cfg, nil
}

// LoadOptional reads path, returning the defaults when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// NewViper returns a viper instance reading TASKSCOPE_* variables, with the
// conventional Supabase variables as fallbacks for the store credentials.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TASKSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("store.url", "TASKSCOPE_STORE_URL", "SUPABASE_URL")
	_ = v.BindEnv("store.key", "TASKSCOPE_STORE_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	return v
}

// Load reads the file at path (optional) and applies v on top, then validates.
func Load(path string, v *viper.Viper) (*Config, error) {
	cfg, err := LoadOptional(path)
	if err != nil {
		return nil, err
	}
	if v != nil {
		cfg.Overlay(v)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overlay copies every key set in v (flag or environment) onto c.
func (c *Config) Overlay(v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				*dst = s
			}
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	str("store.backend", &c.Store.Backend)
	str("store.url", &c.Store.URL)
	str("store.key", &c.Store.Key)
	str("store.schema", &c.Store.Schema)
	if v.IsSet("store.timeout") {
		c.Store.Timeout = v.GetDuration("store.timeout")
	}
	str("snapshot.workspace", &c.Snapshot.Workspace)
	num("query.scan_limit", &c.Query.ScanLimit)
	num("query.page_size", &c.Query.PageSize)
	num("query.max_pages", &c.Query.MaxPages)
	str("server.addr", &c.Server.Addr)
	str("server.jwt_secret", &c.Server.JWTSecret)
	str("log.level", &c.Log.Level)
	str("log.format", &c.Log.Format)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendREST:
		if c.Store.URL == "" || c.Store.Key == "" {
			return ErrMissingCredentials
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("config.store.backend must be %q or %q", BackendREST, BackendSQLite)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config.store.timeout must be positive")
	}
	if c.Query.ScanLimit <= 0 {
		return fmt.Errorf("config.query.scan_limit must be positive")
	}
	if c.Query.PageSize <= 0 {
		return fmt.Errorf("config.query.page_size must be positive")
	}
	if c.Query.MaxPages <= 0 {
		return fmt.Errorf("config.query.max_pages must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}
