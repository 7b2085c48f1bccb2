package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COMPANYDB_DATABASE_PATH.
const EnvPrefix = "COMPANYDB"

// DatabaseConfig selects the database file and how it is opened.
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	AutoMigrate bool          `mapstructure:"auto_migrate"`
}

// LogConfig controls log level and the rotating log file.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty = next to the database file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MaintenanceConfig drives the scheduled maintenance daemon.
type MaintenanceConfig struct {
	Schedule     string `mapstructure:"schedule"` // cron expression or descriptor such as @daily
	Optimize     bool   `mapstructure:"optimize"`
	BackupDir    string `mapstructure:"backup_dir"` // empty disables backups
	BackupRetain int    `mapstructure:"backup_retain"`
}

// Config is the application configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`

	viper *viper.Viper
}

// Load reads configuration from defaults, an optional YAML file and
// COMPANYDB_* environment variables, in increasing priority. With an empty
// configFile, ./companydb.yaml is used when present.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file : %w", err)
		}
	} else {
		v.SetConfigName("companydb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file : %w", err)
			}
		}
	}

	cfg := &Config{viper: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FileUsed returns the config file that was read, or "" if none was.
func (c *Config) FileUsed() string {
	if c.viper == nil {
		return ""
	}
	return c.viper.ConfigFileUsed()
}

// Validate checks the values that would otherwise fail much later.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("invalid busy timeout: %s", c.Database.BusyTimeout)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	if c.Maintenance.BackupRetain < 0 {
		return fmt.Errorf("invalid backup retain count: %d", c.Maintenance.BackupRetain)
	}
	return nil
}

// Watch calls onChange with the reloaded configuration every time the config
// file changes. It returns false when no file was loaded.
func (c *Config) Watch(onChange func(*Config)) bool {
	if c.FileUsed() == "" {
		return false
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("Config file changed")

		next := &Config{viper: c.viper}
		if err := c.viper.Unmarshal(next); err != nil {
			log.Error().Err(err).Msg("Failed to reload config")
			return
		}
		if err := next.Validate(); err != nil {
			log.Error().Err(err).Msg("Ignoring invalid config change")
			return
		}
		onChange(next)
	})
	c.viper.WatchConfig()

	return true
}
