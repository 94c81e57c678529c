package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultDBPath       = "shamebot.db"
	DefaultDBRetryEvery = 5 * time.Second

	DefaultPesterUnit           = "hour"
	DefaultLocation             = "UTC"
	DefaultNotifyTimeout        = 15 * time.Second
	DefaultReconcileConcurrency = 4
	DefaultMaintenanceSchedule  = "0 30 3 * * *"

	DefaultHTTPAddr            = "0.0.0.0:8000"
	DefaultHTTPReadTimeout     = 10 * time.Second
	DefaultHTTPShutdownTimeout = 10 * time.Second
)

// setDefaults registers default values for optional parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.retry_every", DefaultDBRetryEvery)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.admin_user_id", 0)

	v.SetDefault("scheduler.pester_unit", DefaultPesterUnit)
	v.SetDefault("scheduler.location", DefaultLocation)
	v.SetDefault("scheduler.notify_timeout", DefaultNotifyTimeout)
	v.SetDefault("scheduler.fire_missed", false)
	v.SetDefault("scheduler.reconcile_concurrency", DefaultReconcileConcurrency)
	v.SetDefault("scheduler.maintenance_schedule", DefaultMaintenanceSchedule)

	v.SetDefault("http.addr", DefaultHTTPAddr)
	v.SetDefault("http.read_timeout", DefaultHTTPReadTimeout)
	v.SetDefault("http.shutdown_timeout", DefaultHTTPShutdownTimeout)

	v.SetDefault("app.url", "")
}
