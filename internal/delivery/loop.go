package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultSendTimeout = 15 * time.Second
)

// Popper is the part of the reminder store the loop needs.
type Popper interface {
	PopDue(ctx context.Context, now time.Time) ([]reminder.Due, error)
}

type Config struct {
	Interval    time.Duration // rounded down to whole seconds, minimum 1s
	SendTimeout time.Duration
}

// Report summarizes one tick.
type Report struct {
	Popped    int
	Delivered int
	Failed    int
}

// Loop wakes every Interval, pops due reminders and hands each to the sink
// once. A failed send is logged and dropped: delivery is at-most-once.
type Loop struct {
	store Popper
	sink  Sink
	cfg   Config
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time

	lastTick atomic.Int64 // unix nanos
}

type Option func(*Loop)

func WithBus(b eventbus.Bus) Option {
	return func(l *Loop) {
		if b != nil {
			l.bus = b
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(l *Loop) { l.log = log } }

func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

func New(store Popper, sink Sink, cfg Config, opts ...Option) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	// cron.Every works in whole seconds
	cfg.Interval = max(cfg.Interval.Truncate(time.Second), time.Second)
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	l := &Loop{store: store, sink: sink, cfg: cfg, bus: eventbus.Nop(), now: time.Now}
	for _, o := range opts {
		o(l)
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	return l
}

// Run blocks until ctx is canceled. Ticks never overlap; a tick still
// running when the next one is due is skipped.
func (l *Loop) Run(ctx context.Context) error {
	cl := cronLogger{log: l.log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(l.cfg.Interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = l.Tick(ctx)
	}))
	c.Start()
	l.log.Info("delivery loop started", logx.Duration("interval", l.cfg.Interval))

	<-ctx.Done()
	<-c.Stop().Done()
	l.log.Info("delivery loop stopped")
	return nil
}

// Interval is the effective tick period.
func (l *Loop) Interval() time.Duration { return l.cfg.Interval }

// LastTick is when the latest tick started; zero before the first one.
func (l *Loop) LastTick() time.Time {
	n := l.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Check reports an error when no tick started within three intervals.
// started is when Run was called.
func (l *Loop) Check(started time.Time) error {
	last := l.LastTick()
	if last.IsZero() {
		last = started
	}
	if age := l.now().Sub(last); age > 3*l.cfg.Interval {
		return fmt.Errorf("delivery loop stalled: last tick %s ago", age.Truncate(time.Second))
	}
	return nil
}

// Tick runs one cycle.
func (l *Loop) Tick(ctx context.Context) (Report, error) {
	now := l.now()
	l.lastTick.Store(now.UnixNano())
	due, err := l.store.PopDue(ctx, now)
	if err != nil {
		l.log.Error("pop due reminders failed", logx.Err(err))
		return Report{}, fmt.Errorf("pop due: %w", err)
	}
	rep := Report{Popped: len(due)}
	if len(due) == 0 {
		return rep, nil
	}

	for _, d := range due {
		if err := l.deliverOne(ctx, d); err != nil {
			rep.Failed++
			var de *reminder.DeliveryError
			if errors.As(err, &de) {
				l.log.Warn("reminder delivery failed",
					logx.String("owner", de.Owner),
					logx.String("id", de.ReminderID),
					logx.String("kind", de.Kind.String()),
					logx.Err(de.Err),
				)
			}
			l.publish(eventbus.ReminderDeliveryFailed, d, err)
			continue
		}
		rep.Delivered++
		l.publish(eventbus.ReminderDelivered, d, nil)
	}
	l.log.Info("reminders dispatched",
		logx.Int("popped", rep.Popped), logx.Int("delivered", rep.Delivered), logx.Int("failed", rep.Failed),
		logx.Duration("lag", time.Since(now)))
	return rep, nil
}

func (l *Loop) deliverOne(ctx context.Context, d reminder.Due) error {
	sendCtx, cancel := context.WithTimeout(ctx, l.cfg.SendTimeout)
	defer cancel()
	return Deliver(sendCtx, l.sink, d.Owner, d.Reminder)
}

func (l *Loop) publish(typ string, d reminder.Due, err error) {
	ev := eventbus.ReminderEvent{
		Owner:      d.Owner,
		ReminderID: d.Reminder.ID,
		Media:      d.Reminder.Attachment.Kind().String(),
	}
	if err != nil {
		ev.Err = err.Error()
	}
	l.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// cronLogger routes cron's own messages into logx; scheduling chatter goes to debug.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(key, kv[i+1]))
	}
	return out
}
