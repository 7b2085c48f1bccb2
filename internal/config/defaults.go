package config

import "time"

// Default values used when neither the config file nor the environment
// sets a key.
const (
	DefaultDatabasePath = "./company.db"
	DefaultBusyTimeout  = 5 * time.Second

	DefaultLogLevel      = "info"
	DefaultLogMaxSizeMB  = 50
	DefaultLogMaxBackups = 5
	DefaultLogMaxAgeDays = 30
	DefaultLogCompress   = true

	DefaultMaintenanceSchedule = "@daily"
	DefaultBackupRetain        = 7
)

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        DefaultDatabasePath,
			BusyTimeout: DefaultBusyTimeout,
			AutoMigrate: true,
		},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
		Maintenance: MaintenanceConfig{
			Schedule:     DefaultMaintenanceSchedule,
			Optimize:     true,
			BackupRetain: DefaultBackupRetain,
		},
	}
}

// setDefaults registers DefaultConfig with v so every key is known to
// viper, which AutomaticEnv needs to resolve environment overrides.
func setDefaults(v interface{ SetDefault(string, any) }) {
	d := DefaultConfig()

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("maintenance.schedule", d.Maintenance.Schedule)
	v.SetDefault("maintenance.optimize", d.Maintenance.Optimize)
	v.SetDefault("maintenance.backup_dir", d.Maintenance.BackupDir)
	v.SetDefault("maintenance.backup_retain", d.Maintenance.BackupRetain)
}
