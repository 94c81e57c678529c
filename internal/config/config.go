// Package config provides configuration loading, validation, and defaults
// for the trigger scheduler service. It reads config.yaml, applies
// SHAMEBOT_* environment overrides and validates the result.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	App       AppConfig       `mapstructure:"app"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig points at the SQLite file holding tasks and trigger records.
type DatabaseConfig struct {
	Path       string        `mapstructure:"path"        validate:"required"`
	RetryEvery time.Duration `mapstructure:"retry_every" validate:"min=100ms"`
}

// TelegramConfig configures the notifier transport.
// When Enabled is false notifications are only logged.
type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"         validate:"required_if=Enabled true"`
	ChatID      int64  `mapstructure:"chat_id"       validate:"required_if=Enabled true"`
	AdminUserID int64  `mapstructure:"admin_user_id" validate:"gte=0"`
}

// SchedulerConfig tunes trigger computation and dispatch.
type SchedulerConfig struct {
	// PesterUnit is the time unit a task's pester interval is counted in.
	PesterUnit           string        `mapstructure:"pester_unit"           validate:"required,oneof=second minute hour"`
	Location             string        `mapstructure:"location"              validate:"required"`
	NotifyTimeout        time.Duration `mapstructure:"notify_timeout"        validate:"min=1s,max=5m"`
	FireMissed           bool          `mapstructure:"fire_missed"`
	ReconcileConcurrency int           `mapstructure:"reconcile_concurrency" validate:"min=1,max=64"`
	// MaintenanceSchedule is a 6-field crontab for database housekeeping.
	// Empty disables it.
	MaintenanceSchedule string `mapstructure:"maintenance_schedule"`
}

// HTTPConfig configures the jobs/health API.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// AppConfig holds values used when rendering notifications.
type AppConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}
