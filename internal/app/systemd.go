package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "remindbot/pkg/logx"
)

// notifySystemd is a no-op outside a Type=notify unit (NOTIFY_SOCKET unset).
func (a *App) notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdog pings systemd at half the WatchdogSec interval while the delivery
// loop is healthy. A stalled loop stops the pings and systemd restarts us.
func (a *App) watchdog(c context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	every := interval / 2
	if every < time.Second {
		every = time.Second
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-t.C:
			if err := a.health(); err != nil {
				a.log.Warn("withholding watchdog ping", logx.Err(err))
				continue
			}
			a.notifySystemd(daemon.SdNotifyWatchdog)
		}
	}
}
