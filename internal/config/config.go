package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Reader
		Tasks
		Rescan
		Security
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
		ConfigDir                string // preference file location; empty = OS default
	}
	Reader struct {
		ThrottleInterval time.Duration // min interval between progress flushes
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		MaxRetries      int
		RetryDelay      time.Duration
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Rescan struct {
		Schedule string // cron format; empty disables the periodic rescan
		Watch    bool   // also rescan on filesystem events under books/
	}
	Security struct {
		CSRFSecret    string // 32-byte hex; empty disables CSRF protection
		SecureCookies bool   // false for plain-http localhost serving
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8688)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("config_dir", "")
	v.SetDefault("reader_throttle_seconds", 2)
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("tasks_workers", 2)
	v.SetDefault("tasks_max_retries", 3)
	v.SetDefault("tasks_retry_delay_seconds", 30)
	v.SetDefault("tasks_release_after_minutes", 15)
	v.SetDefault("tasks_cleanup_interval_minutes", 60)
	v.SetDefault("rescan_schedule", "*/30 * * * *")
	v.SetDefault("rescan_watch", true)
	v.SetDefault("csrf_secret", "")
	v.SetDefault("secure_cookies", false)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("port"),
			Host: v.GetString("host"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("shutdown_timeout_in_seconds"),
			ConfigDir:                v.GetString("config_dir"),
		},
		Reader: Reader{
			ThrottleInterval: time.Duration(v.GetInt("reader_throttle_seconds")) * time.Second,
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("tasks_enabled"),
			Workers:         v.GetInt("tasks_workers"),
			MaxRetries:      v.GetInt("tasks_max_retries"),
			RetryDelay:      time.Duration(v.GetInt("tasks_retry_delay_seconds")) * time.Second,
			ReleaseAfter:    time.Duration(v.GetInt("tasks_release_after_minutes")) * time.Minute,
			CleanupInterval: time.Duration(v.GetInt("tasks_cleanup_interval_minutes")) * time.Minute,
		},
		Rescan: Rescan{
			Schedule: v.GetString("rescan_schedule"),
			Watch:    v.GetBool("rescan_watch"),
		},
		Security: Security{
			CSRFSecret:    v.GetString("csrf_secret"),
			SecureCookies: v.GetBool("secure_cookies"),
		},
	}
}
