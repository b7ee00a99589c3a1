package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/commands"
	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/observability/metrics"
	"remindbot/internal/observability/ops"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *reminder.Store
	adapter kit.Adapter
	cmdm    *router.CommandManager
	loop    *delivery.Loop
	metrics *metrics.Collector
	ops     *ops.Service

	startedAt time.Time
	updates   chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Telegram logging needs the adapter, which needs a logger: start
	// without it and attach the sender once the adapter exists.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, nil)

	a, err := build(ctx, cfgm, cfg, logSvc, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if chatID, threadID, err := config.ParseGroupLog(cfg.Telegram.GroupLog); err == nil && chatID != 0 {
		logSvc.SetTelegramTarget(chatID, threadID)
	}
	logSvc.SetSender(a.adapter, logCfg)
	return a, nil
}

func build(ctx context.Context, cfgm *config.ConfigManager, cfg *config.Config, logSvc *logx.Service, log logx.Logger) (*App, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	store, err := reminder.OpenStore(ctx, backend,
		reminder.WithBus(bus),
		reminder.WithLogger(log.With(logx.String("comp", "reminders"))),
		reminder.WithLocation(loc),
		reminder.WithMaxPerOwner(cfg.Reminders.MaxPerOwner),
	)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	handlers := commands.New(store, reminder.NewResolver(loc), commands.WithLogger(log))
	cmdm := router.NewCommandManager(log, ad, router.Options{UserRatePerMin: cfg.Reminders.UserRatePerMin})
	cmdm.SetCommands(handlers.Commands())
	cmdm.SetFallback(handlers.Remember)
	cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
	cmdm.SetAllowed(cfg.Telegram.AllowedUserIDs)

	dcfg, err := mapDeliveryConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	loop := delivery.New(store, delivery.NewAdapterSink(ad, cfg.Reminders.SendRatePerSec), dcfg,
		delivery.WithBus(bus),
		delivery.WithLogger(log.With(logx.String("comp", "delivery"))),
	)

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		cmdm:    cmdm,
		loop:    loop,
		metrics: metrics.New(store.Stats, bus),
		updates: make(chan kit.Update, 256),
	}
	a.ops = ops.New(mapOpsConfig(cfg), log, a.metrics.Handler(), a.health)
	a.log.Info("app built",
		logx.String("timezone", loc.String()),
		logx.String("storage", sc.Driver),
		logx.Duration("poll_interval", dcfg.Interval),
	)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if a.sup == nil {
		return fmt.Errorf("not started")
	}
	return a.loop.Check(a.startedAt)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.startedAt = time.Now()
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateReload(cfg) })

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go0("commands.menu_sync", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.cmdm.SyncMenu(mctx); err != nil {
			a.log.Warn("menu sync failed", logx.Err(err))
		}
	})
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go("delivery.loop", a.loop.Run)
	a.sup.Go0("metrics.events", func(c context.Context) { a.metrics.Run(c, a.bus) })
	a.sup.Go0("eventbus.log", a.logEvents)

	if err := a.ops.Start(run); err != nil {
		// ops is optional; a bad bind must not keep reminders from going out
		a.log.Error("ops server not started", logx.Err(err))
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", a.watchdog)

	st := a.store.Stats()
	a.log.Info("app started", logx.Int("pending", st.Pending), logx.Int("owners", st.Owners), logx.Duration("delivery_interval", a.loop.Interval()))
	a.notifySystemd(daemon.SdNotifyReady)
	return nil
}

func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ev, _ := e.Data.(eventbus.ReminderEvent)
			a.log.Debug("event",
				logx.String("type", e.Type),
				logx.String("owner", ev.Owner),
				logx.String("reminder_id", ev.ReminderID),
			)
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notifySystemd(daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// dispatcher and delivery loop; both may still be writing to the store
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. The caller's deadline is never extended.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (no time left)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
