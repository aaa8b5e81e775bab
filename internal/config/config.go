// Package config loads diafano settings from YAML or TOML files, a .env file
// and the process environment, in that order of precedence (last wins).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "./config/config.yaml"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database struct {
		Driver   string `yaml:"driver" toml:"driver"`
		URL      string `yaml:"url" toml:"url"`
		Path     string `yaml:"path" toml:"path"`
		MaxConns int32  `yaml:"max_conns" toml:"max_conns"`
	} `yaml:"database" toml:"database"`

	Server struct {
		Addr string `yaml:"addr" toml:"addr"`
	} `yaml:"server" toml:"server"`

	API struct {
		Secret      string `yaml:"secret" toml:"secret"`
		AdminSecret string `yaml:"admin_secret" toml:"admin_secret"`
	} `yaml:"api" toml:"api"`

	Ollama struct {
		BaseURL    string `yaml:"base_url" toml:"base_url"`
		EmbedModel string `yaml:"embed_model" toml:"embed_model"`
	} `yaml:"ollama" toml:"ollama"`

	Search struct {
		Limit             int     `yaml:"limit" toml:"limit"`
		SemanticThreshold float64 `yaml:"semantic_threshold" toml:"semantic_threshold"`
	} `yaml:"search" toml:"search"`

	Feeds struct {
		Schedule string  `yaml:"schedule" toml:"schedule"`
		RPS      float64 `yaml:"rps" toml:"rps"`
	} `yaml:"feeds" toml:"feeds"`

	Log struct {
		Level string `yaml:"level" toml:"level"`
	} `yaml:"log" toml:"log"`
}

// Default returns a config that runs against a local SQLite file.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Driver = DriverSQLite
	cfg.Database.Path = "./diafano.db"
	cfg.Database.MaxConns = 20
	cfg.Server.Addr = ":8080"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.EmbedModel = "nomic-embed-text"
	cfg.Search.Limit = 20
	cfg.Search.SemanticThreshold = 0.5
	cfg.Feeds.Schedule = "*/30 * * * *"
	cfg.Feeds.RPS = 2
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path over the defaults. A missing file is not an error. The
// format follows the extension: .toml is TOML, anything else YAML.
// Environment variables are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	case strings.EqualFold(filepath.Ext(path), ".toml"):
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// .env is optional; real environment variables still win over it.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
		c.Database.Driver = DriverPostgres
	}
	if v := os.Getenv("API_SECRET_KEY"); v != "" {
		c.API.Secret = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		c.API.AdminSecret = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Server.Addr = ":" + v
		}
	}
	if os.Getenv("DEBUG") == "true" {
		c.Log.Level = "debug"
	}
}

// Validate checks the fields the binaries cannot start without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q (valid: postgres, sqlite)", c.Database.Driver)
	}
	if c.Search.SemanticThreshold < 0 || c.Search.SemanticThreshold > 1 {
		return fmt.Errorf("search.semantic_threshold must be within [0, 1], got %v", c.Search.SemanticThreshold)
	}
	return nil
}

// Write stores c at path as YAML, creating the directory. It refuses to
// overwrite an existing file.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// NewLogger builds the text logger used by every binary.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
