package app

import (
	"context"
	"strings"

	"remindbot/internal/config"
	logx "remindbot/pkg/logx"
)

func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts: only the newest config matters
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, last, cfg)
			last = cfg
		}
	}
}

// applyConfig pushes the hot-reloadable parts of cfg into the running
// components and reports what needs a restart.
func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	changed, attrs, restart := config.SummarizeConfigChange(prev, cfg)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	// target first, so Apply doesn't warn about an enabled sink without a chat
	chatID, threadID, _ := config.ParseGroupLog(cfg.Telegram.GroupLog)
	a.logs.SetTelegramTarget(chatID, threadID)
	a.logs.Apply(mapLogConfig(cfg))

	a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.cmdm.SetAllowed(cfg.Telegram.AllowedUserIDs)
	if prev == nil || prev.Reminders.UserRatePerMin != cfg.Reminders.UserRatePerMin {
		a.cmdm.SetUserRate(cfg.Reminders.UserRatePerMin)
	}

	if err := a.ops.Reconfigure(ctx, mapOpsConfig(cfg)); err != nil {
		a.log.Error("ops server reconfigure failed", logx.Err(err))
	}

	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("settings", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
