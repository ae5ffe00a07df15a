package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Log      LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ImportConfig bounds batches and preview handles.
type ImportConfig struct {
	MaxFiles        int           `mapstructure:"max_files"`
	MaxBytes        int64         `mapstructure:"max_bytes"`
	PreviewTTL      time.Duration `mapstructure:"preview_ttl"`
	PreviewCapacity int           `mapstructure:"preview_capacity"`
	SampleRows      int           `mapstructure:"sample_rows"`
	FormatsFile     string        `mapstructure:"formats_file"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	// Format is "console" or "json".
	Format string
}

// Default returns the built-in configuration.
func Default() Config {
	home := os.Getenv("HOME")
	return Config{
		Database: DatabaseConfig{Path: filepath.Join(home, ".local", "share", "moneyimport", "moneyimport.db")},
		Import: ImportConfig{
			MaxFiles:        20,
			MaxBytes:        10 << 20,
			PreviewTTL:      15 * time.Minute,
			PreviewCapacity: 64,
			SampleRows:      5,
			FormatsFile:     filepath.Join(home, ".config", "moneyimport", "formats.toml"),
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from file and env. Env var overrides use prefix
// MONEYIMPORT_. path, when set, wins over MONEYIMPORT_CONFIG.
func Load(path string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("import.max_files", def.Import.MaxFiles)
	v.SetDefault("import.max_bytes", def.Import.MaxBytes)
	v.SetDefault("import.preview_ttl", def.Import.PreviewTTL)
	v.SetDefault("import.preview_capacity", def.Import.PreviewCapacity)
	v.SetDefault("import.sample_rows", def.Import.SampleRows)
	v.SetDefault("import.formats_file", def.Import.FormatsFile)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv("MONEYIMPORT_CONFIG")
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "moneyimport"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("MONEYIMPORT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// a missing default file is fine; a named one must exist
		if _, notFound := err.(viper.ConfigFileNotFoundError); explicit || !notFound {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch {
	case c.Import.MaxFiles <= 0:
		return fmt.Errorf("import.max_files must be positive")
	case c.Import.MaxBytes <= 0:
		return fmt.Errorf("import.max_bytes must be positive")
	case c.Import.PreviewTTL <= 0:
		return fmt.Errorf("import.preview_ttl must be positive")
	case c.Import.PreviewCapacity <= 0:
		return fmt.Errorf("import.preview_capacity must be positive")
	case c.Log.Format != "console" && c.Log.Format != "json":
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
