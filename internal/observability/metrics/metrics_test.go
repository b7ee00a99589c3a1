package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
)

func TestObserveCountsEvents(t *testing.T) {
	t.Parallel()
	c := New(nil, nil)
	for _, e := range []eventbus.Event{
		{Type: eventbus.ReminderAdded, Data: eventbus.ReminderEvent{Owner: "1"}},
		{Type: eventbus.ReminderAdded, Data: eventbus.ReminderEvent{Owner: "1"}},
		{Type: eventbus.ReminderDeleted, Data: eventbus.ReminderEvent{Owner: "1"}},
		{Type: eventbus.ReminderDelivered, Data: eventbus.ReminderEvent{Owner: "1", Media: "photo"}},
		{Type: eventbus.ReminderDelivered, Data: eventbus.ReminderEvent{Owner: "1"}},
		{Type: eventbus.ReminderDeliveryFailed, Data: eventbus.ReminderEvent{Owner: "1", Err: "blocked"}},
		{Type: "something.else"},
	} {
		c.Observe(e)
	}
	if got := testutil.ToFloat64(c.added); got != 2 {
		t.Fatalf("added = %v", got)
	}
	if got := testutil.ToFloat64(c.deleted); got != 1 {
		t.Fatalf("deleted = %v", got)
	}
	if got := testutil.ToFloat64(c.delivered.WithLabelValues("photo")); got != 1 {
		t.Fatalf("delivered photo = %v", got)
	}
	if got := testutil.ToFloat64(c.delivered.WithLabelValues("text")); got != 1 {
		t.Fatalf("delivered text = %v", got)
	}
	if got := testutil.ToFloat64(c.failed.WithLabelValues("text")); got != 1 {
		t.Fatalf("failed = %v", got)
	}
}

func TestRunFollowsBus(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	c := New(nil, bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, bus)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(c.added) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event never counted")
		}
		// the subscription may not exist yet; keep publishing until it is seen
		bus.Publish(eventbus.Event{Type: eventbus.ReminderAdded, Data: eventbus.ReminderEvent{Owner: "1"}})
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestHandlerExposesGauges(t *testing.T) {
	t.Parallel()
	next := time.Unix(1_700_000_000, 0)
	c := New(func() reminder.Stats { return reminder.Stats{Owners: 2, Pending: 3, NextDue: next} }, nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"remindbot_reminders_pending 3",
		"remindbot_reminder_owners 2",
		"remindbot_reminder_next_due_timestamp_seconds 1.7e+09",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output lacks %q", want)
		}
	}
}
