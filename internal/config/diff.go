package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange lists the changed sections, safe attrs for logging
// (tokens are never included) and the changed settings that only take
// effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := oldCfg, newCfg

	if o.Telegram.Token != n.Telegram.Token ||
		strings.TrimSpace(o.Telegram.PollTimeout) != strings.TrimSpace(n.Telegram.PollTimeout) ||
		!reflect.DeepEqual(o.Telegram.OwnerUserIDs, n.Telegram.OwnerUserIDs) ||
		!reflect.DeepEqual(o.Telegram.AllowedUserIDs, n.Telegram.AllowedUserIDs) ||
		strings.TrimSpace(o.Telegram.GroupLog) != strings.TrimSpace(n.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(n.Telegram.OwnerUserIDs)),
			logx.Int("telegram.allowed_count", len(n.Telegram.AllowedUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(n.Telegram.GroupLog) != ""),
		)
		if o.Telegram.Token != n.Telegram.Token {
			restart = append(restart, "telegram.token")
		}
		if strings.TrimSpace(o.Telegram.PollTimeout) != strings.TrimSpace(n.Telegram.PollTimeout) {
			restart = append(restart, "telegram.poll_timeout")
		}
	}

	if o.Logging != n.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.Console),
			logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Logging.Telegram.Enabled),
		)
	}

	if o.Reminders != n.Reminders {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.timezone", n.Reminders.Timezone),
			logx.String("reminders.poll_interval", n.Reminders.PollInterval),
			logx.Int("reminders.max_per_owner", n.Reminders.MaxPerOwner),
			logx.Int("reminders.user_rate_per_min", n.Reminders.UserRatePerMin),
		)
		if o.Reminders.Timezone != n.Reminders.Timezone {
			restart = append(restart, "reminders.timezone")
		}
		if o.Reminders.PollInterval != n.Reminders.PollInterval || o.Reminders.SendTimeout != n.Reminders.SendTimeout {
			restart = append(restart, "reminders.delivery")
		}
		if o.Reminders.SendRatePerSec != n.Reminders.SendRatePerSec {
			restart = append(restart, "reminders.send_rate_per_sec")
		}
		if o.Reminders.MaxPerOwner != n.Reminders.MaxPerOwner {
			restart = append(restart, "reminders.max_per_owner")
		}
	}

	if o.Storage != n.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", n.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(n.Storage.Path) != ""),
		)
		restart = append(restart, "storage")
	}

	if o.Ops.Enabled != n.Ops.Enabled ||
		strings.TrimSpace(o.Ops.Addr) != strings.TrimSpace(n.Ops.Addr) ||
		o.Ops.Token != n.Ops.Token ||
		o.Ops.AllowInsecure != n.Ops.AllowInsecure ||
		o.Ops.Pprof != n.Ops.Pprof ||
		o.Ops.MetricsEnabled() != n.Ops.MetricsEnabled() {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", n.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(n.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(n.Ops.Token) != ""),
			logx.Bool("ops.pprof", n.Ops.Pprof),
			logx.Bool("ops.metrics", n.Ops.MetricsEnabled()),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
