package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

// FileNames are the configuration files looked up when no path is given
var FileNames = []string{"ormkit.yml", "ormkit.yaml"}

// Config represents the ormkit configuration
type Config struct {
	Database DatabaseConfig      `mapstructure:"database"`
	Log      LogConfig           `mapstructure:"log"`
	Entities []schema.Definition `mapstructure:"entities"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads the configuration from path, or from ormkit.yml/ormkit.yaml in
// the working directory when path is empty. A missing default file is not an
// error. ORMKIT_* variables override file values; DATABASE_URL is honoured
// as well.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "file:ormkit.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ormkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ORMKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", "ORMKIT_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Registry registers every configured entity type and validates the set
func (c *Config) Registry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, def := range c.Entities {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	if err := reg.ValidateAll(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Level returns the configured log level
func (c *Config) Level() zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// FindConfig walks up from the working directory looking for a config file
func FindConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no ormkit.yml found")
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if _, err := database.DialectFor(cfg.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url must not be empty")
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Entities))
	for i, def := range cfg.Entities {
		if def.Name == "" {
			return fmt.Errorf("entities[%d]: name is required", i)
		}
		if seen[def.Name] {
			return fmt.Errorf("entities[%d]: %s is declared twice", i, def.Name)
		}
		seen[def.Name] = true
	}
	return nil
}
