// Package metrics exports reminder counters to Prometheus. Counters are fed
// from the event bus, so the store and the delivery loop never import it.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
)

const namespace = "remindbot"

// StatsFunc reports the current pending set; *reminder.Store.Stats fits.
type StatsFunc func() reminder.Stats

type Collector struct {
	reg *prometheus.Registry

	added     prometheus.Counter
	deleted   prometheus.Counter
	delivered *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// New builds a collector on a dedicated registry with the Go and process
// collectors. stats may be nil; bus may be nil.
func New(stats StatsFunc, bus eventbus.Bus) *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		added: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_added_total",
			Help:      "Reminders created.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_deleted_total",
			Help:      "Reminders removed by their owner before delivery.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_delivered_total",
			Help:      "Reminders handed to the chat transport.",
		}, []string{"media"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_delivery_failures_total",
			Help:      "Reminders whose send failed. They are not retried.",
		}, []string{"media"}),
	}
	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.added, c.deleted, c.delivered, c.failed,
	)
	if stats != nil {
		c.reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_pending",
				Help:      "Reminders waiting for their due time.",
			}, func() float64 { return float64(stats().Pending) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminder_owners",
				Help:      "Owners with at least one pending reminder.",
			}, func() float64 { return float64(stats().Owners) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminder_next_due_timestamp_seconds",
				Help:      "Unix time of the earliest pending reminder, 0 when none.",
			}, func() float64 {
				next := stats().NextDue
				if next.IsZero() {
					return 0
				}
				return float64(next.Unix())
			}),
		)
	}
	if bus != nil {
		c.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped_total",
			Help:      "Events skipped because a subscriber was full.",
		}, func() float64 { return float64(eventbus.Dropped(bus)) }))
	}
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Observe applies one bus event to the counters.
func (c *Collector) Observe(e eventbus.Event) {
	ev, _ := e.Data.(eventbus.ReminderEvent)
	media := ev.Media
	if media == "" {
		media = "text"
	}
	switch e.Type {
	case eventbus.ReminderAdded:
		c.added.Inc()
	case eventbus.ReminderDeleted:
		c.deleted.Inc()
	case eventbus.ReminderDelivered:
		c.delivered.WithLabelValues(media).Inc()
	case eventbus.ReminderDeliveryFailed:
		c.failed.WithLabelValues(media).Inc()
	}
}

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}
