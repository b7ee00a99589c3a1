package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zones load even where the host has no zoneinfo
)

const (
	DefaultTimezone    = "Asia/Phnom_Penh"
	DefaultStoragePath = "reminders.json"
	DefaultOpsAddr     = "127.0.0.1:9090"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`
	Storage   StorageConfig   `json:"storage"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// AllowedUserIDs restricts who may create reminders. Empty allows everyone.
	AllowedUserIDs []int64 `json:"allowed_user_ids,omitempty"`
	// GroupLog is "<chat_id>" or "<chat_id>:<thread_id>" for mirrored logs.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RemindersConfig controls time resolution and delivery.
//
// Durations are Go duration strings. Defaults:
//   - timezone: Asia/Phnom_Penh
//   - poll_interval: 30s
//   - send_timeout: 15s
//   - send_rate_per_sec: 20
//   - user_rate_per_min: 30
//   - max_per_owner: 0 (unlimited)
type RemindersConfig struct {
	Timezone       string  `json:"timezone,omitempty"`
	PollInterval   string  `json:"poll_interval,omitempty"`
	SendTimeout    string  `json:"send_timeout,omitempty"`
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty"`
	UserRatePerMin int     `json:"user_rate_per_min,omitempty"`
	MaxPerOwner    int     `json:"max_per_owner,omitempty"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/reminders.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default) | sqlite | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// OpsConfig controls the operational HTTP server (/healthz, /metrics, pprof).
//
// Bind to loopback, or set a token, or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (never logged)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	Metrics       *bool  `json:"metrics,omitempty"` // default true
}

// MetricsEnabled reports whether /metrics is served.
func (o OpsConfig) MetricsEnabled() bool { return o.Metrics == nil || *o.Metrics }

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Reminders.Timezone) == "" {
		c.Reminders.Timezone = DefaultTimezone
	}
	if c.Reminders.SendRatePerSec == 0 {
		c.Reminders.SendRatePerSec = 20
	}
	if c.Reminders.UserRatePerMin == 0 {
		c.Reminders.UserRatePerMin = 30
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(c.Ops.Addr) == "" {
		c.Ops.Addr = DefaultOpsAddr
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks everything that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set BOT_TOKEN)"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := ParseGroupLog(c.Telegram.GroupLog); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if d, err := ParseDurationField("reminders.poll_interval", c.Reminders.PollInterval); err != nil {
		errs = append(errs, err)
	} else if d > 0 && d < time.Second {
		errs = append(errs, errors.New("reminders.poll_interval must be at least 1s"))
	}
	if _, err := ParseDurationField("reminders.send_timeout", c.Reminders.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Reminders.SendRatePerSec < 0 || c.Reminders.UserRatePerMin < 0 || c.Reminders.MaxPerOwner < 0 {
		errs = append(errs, errors.New("reminders: rates and max_per_owner must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3", "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location loads reminders.timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Reminders.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}
