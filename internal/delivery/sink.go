package delivery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
)

// Sink delivers a payload to an owner.
type Sink interface {
	SendText(ctx context.Context, owner, text string) error
	SendPhoto(ctx context.Context, owner, handle, caption string) error
	SendDocument(ctx context.Context, owner, handle, caption string) error
}

const captionPrefix = "🔔 Reminder:\n"

// Caption is the text shown with a delivered reminder.
func Caption(text string) string { return captionPrefix + text }

// Deliver sends r to owner through sink. Failures come back as *reminder.DeliveryError.
func Deliver(ctx context.Context, sink Sink, owner string, r reminder.Reminder) error {
	caption := Caption(r.Text)
	var err error
	switch r.Attachment.Kind() {
	case reminder.AttachPhoto:
		err = sink.SendPhoto(ctx, owner, r.Attachment.Handle(), caption)
	case reminder.AttachDocument:
		err = sink.SendDocument(ctx, owner, r.Attachment.Handle(), caption)
	default:
		err = sink.SendText(ctx, owner, caption)
	}
	if err != nil {
		return &reminder.DeliveryError{Owner: owner, ReminderID: r.ID, Kind: r.Attachment.Kind(), Err: err}
	}
	return nil
}

// AdapterSink sends through a chat transport adapter. Owners are chat ids.
// Sends are throttled globally to stay under the platform's flood limits.
type AdapterSink struct {
	adapter kit.Adapter
	limiter *rate.Limiter
}

// NewAdapterSink builds a sink allowing perSec sends per second (<=0 disables throttling).
func NewAdapterSink(a kit.Adapter, perSec float64) *AdapterSink {
	s := &AdapterSink{adapter: a}
	if perSec > 0 {
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
	return s
}

func (s *AdapterSink) SendText(ctx context.Context, owner, text string) error {
	to, err := s.target(ctx, owner)
	if err != nil {
		return err
	}
	_, err = s.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func (s *AdapterSink) SendPhoto(ctx context.Context, owner, handle, caption string) error {
	to, err := s.target(ctx, owner)
	if err != nil {
		return err
	}
	_, err = s.adapter.SendPhoto(ctx, to, handle, caption)
	return err
}

func (s *AdapterSink) SendDocument(ctx context.Context, owner, handle, caption string) error {
	to, err := s.target(ctx, owner)
	if err != nil {
		return err
	}
	_, err = s.adapter.SendDocument(ctx, to, handle, caption)
	return err
}

func (s *AdapterSink) target(ctx context.Context, owner string) (kit.ChatTarget, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(owner), 10, 64)
	if err != nil {
		return kit.ChatTarget{}, fmt.Errorf("owner %q is not a chat id: %w", owner, err)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return kit.ChatTarget{}, err
		}
	}
	return kit.ChatTarget{ChatID: id}, nil
}
