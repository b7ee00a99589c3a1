package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/observability/ops"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const defaultSQLitePath = "reminders.db"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file", "json":
		if path == "" {
			path = config.DefaultStoragePath
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" || path == config.DefaultStoragePath {
			path = defaultSQLitePath
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	interval, err := config.ParseDurationOrDefault("reminders.poll_interval", cfg.Reminders.PollInterval, delivery.DefaultInterval)
	if err != nil {
		return delivery.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("reminders.send_timeout", cfg.Reminders.SendTimeout, delivery.DefaultSendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{Interval: interval, SendTimeout: timeout}, nil
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          strings.TrimSpace(cfg.Ops.Addr),
		Token:         strings.TrimSpace(cfg.Ops.Token),
		AllowInsecure: cfg.Ops.AllowInsecure,
		Pprof:         cfg.Ops.Pprof,
		Metrics:       cfg.Ops.MetricsEnabled(),
		ReadTimeout:   10 * time.Second,
		// leaves room for /debug/pprof/profile?seconds=30
		WriteTimeout: 60 * time.Second,
	}
}

// validateReload rejects configs the running app could not apply.
func validateReload(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDeliveryConfig(cfg); err != nil {
		return err
	}
	oc := mapOpsConfig(cfg)
	if oc.Enabled && oc.Token == "" && !oc.AllowInsecure && !ops.IsLoopbackAddr(oc.Addr) {
		return fmt.Errorf("ops.addr %s is not loopback: set ops.token or ops.allow_insecure", oc.Addr)
	}
	return nil
}
