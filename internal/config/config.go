package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/timp-relay/internal/logging"
	"github.com/Tyrowin/timp-relay/internal/server"
	"github.com/Tyrowin/timp-relay/internal/store"
)

// Config is the full relay configuration.
type Config struct {
	Server server.Config  `yaml:"server"`
	Store  store.Config   `yaml:"store"`
	Log    logging.Config `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: server.DefaultConfig(),
		Store: store.Config{
			Driver:    "sqlite",
			Path:      "data/timp.db",
			Retention: store.DefaultRetention,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML config file over the defaults, expanding ${VAR}
// references first. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidate loads path, applies environment overrides and then each
// of overrides (command-line flags), sanitizes and validates the result.
func LoadAndValidate(path string, overrides ...func(*Config)) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	for _, o := range overrides {
		o(cfg)
	}
	cfg.Server = cfg.Server.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. Unparseable numeric
// values keep the current setting.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("SERVER_PORT"); ok && v != "" {
		c.Server.Port = v
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = parseOrigins(v)
	}
	if v, ok := lookup("MAX_MESSAGE_SIZE"); ok && v != "" {
		c.Server.MaxMessageSize = parseInt64(v, c.Server.MaxMessageSize)
	}
	if v, ok := lookup("STORE_DRIVER"); ok && v != "" {
		c.Store.Driver = v
	}
	if v, ok := lookup("STORE_PATH"); ok && v != "" {
		c.Store.Path = v
	}
	if v, ok := lookup("STORE_RETENTION"); ok && v != "" {
		c.Store.Retention = int(parseInt64(v, int64(c.Store.Retention)))
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
}

// Validate checks that required fields are set and values are usable.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Server.MaxMessageSize <= 0 {
		return errors.New("server.max_message_size must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case "memory", "mem":
	default:
		return fmt.Errorf("store.driver must be sqlite or memory, got %q", c.Store.Driver)
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("store.retention must be >= 0, got %d", c.Store.Retention)
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64(value string, defaultValue int64) int64 {
	if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && n > 0 {
		return n
	}
	return defaultValue
}
