// Package commands implements the chat surface of the reminder bot: the
// slash commands and the fallback that turns free text into reminders.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// DisplayLayout is how due times are shown back to users.
const DisplayLayout = "2006-01-02 03:04 PM"

// listTextRunes keeps one long reminder from pushing the rest of /list out of view.
const listTextRunes = 200

const (
	msgStart = "👋 Smart Reminder Bot running!\n\n" +
		"Commands:\n" +
		"/list - show all reminders\n" +
		"/delete <id> - delete a reminder\n" +
		"Send a message or forward a picture/file with 'Remind me in 30 minutes' or 'Remind me at 8pm'"
	msgNoTime      = "⚠️ Could not parse time from your message."
	msgNoSender    = "⚠️ I can only remind a user. Send this from your own account."
	msgPastTime    = "⚠️ That time has already passed. Try a time in the future."
	msgTooMany     = "⚠️ You have too many pending reminders. Remove some with /delete first."
	msgSaveFailed  = "⚠️ Could not save that right now, please try again."
	msgEmpty       = "📭 No reminders set."
	msgListHeader  = "🗓 Your Reminders:\n"
	msgDeleteUsage = "Usage: /delete <id>"
	msgInvalidID   = "⚠️ Invalid reminder ID."
)

// Store is the part of *reminder.Store the handlers use.
type Store interface {
	Add(ctx context.Context, owner, text string, dueAt time.Time, att reminder.Attachment) (reminder.Reminder, error)
	List(owner string) []reminder.Entry
	DeleteAt(ctx context.Context, owner string, position int) (reminder.Reminder, error)
	Stats() reminder.Stats
}

type Handlers struct {
	store     Store
	resolver  *reminder.Resolver
	log       logx.Logger
	now       func() time.Time
	startedAt time.Time
}

type Option func(*Handlers)

func WithLogger(log logx.Logger) Option { return func(h *Handlers) { h.log = log } }

func WithClock(now func() time.Time) Option {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

func New(store Store, resolver *reminder.Resolver, opts ...Option) *Handlers {
	h := &Handlers{store: store, resolver: resolver, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	h.log = h.log.With(logx.String("comp", "commands"))
	h.startedAt = h.now()
	return h
}

// Commands returns the command table for the router. /help is added by the router.
func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "what this bot does",
			Usage:       "/start",
			Handle:      h.cmdStart,
		},
		{
			Name:        "list",
			Aliases:     []string{"ls"},
			Description: "show all reminders",
			Usage:       "/list",
			Handle:      h.cmdList,
		},
		{
			Name:        "delete",
			Aliases:     []string{"del", "rm"},
			Description: "delete a reminder by its number in /list",
			Usage:       "/delete <id>",
			Handle:      h.cmdDelete,
		},
		{
			Name:        "stats",
			Description: "reminder store statistics",
			Usage:       "/stats",
			Access:      router.AccessOwnerOnly,
			Timeout:     5 * time.Second,
			Handle:      h.cmdStats,
		},
	}
}

// OwnerOf maps a sender to the owner key reminders are stored under.
// Delivery goes to the sender's private chat, whatever chat the request came from.
func OwnerOf(userID int64) string { return strconv.FormatInt(userID, 10) }

func (h *Handlers) cmdStart(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, msgStart)
}

func (h *Handlers) cmdList(ctx context.Context, req *router.Request) error {
	entries := h.store.List(OwnerOf(req.FromID))
	if len(entries) == 0 {
		return req.Reply(ctx, msgEmpty)
	}
	var b strings.Builder
	b.WriteString(msgListHeader)
	for _, e := range entries {
		fmt.Fprintf(&b, "%d. %s — %s", e.Position, e.DueAt.In(h.resolver.Location()).Format(DisplayLayout), tgui.TruncRunes(e.Text, listTextRunes))
		if !e.Attachment.IsNone() {
			b.WriteString(" 📎")
		}
		b.WriteByte('\n')
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (h *Handlers) cmdDelete(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, msgDeleteUsage)
	}
	pos, err := strconv.Atoi(strings.TrimSpace(req.Args[0]))
	if err != nil {
		return req.Reply(ctx, msgInvalidID)
	}
	removed, err := h.store.DeleteAt(ctx, OwnerOf(req.FromID), pos)
	switch {
	case errors.Is(err, reminder.ErrOutOfRange):
		return req.Reply(ctx, msgInvalidID)
	case err != nil:
		req.Logger.Error("delete reminder failed", logx.Err(err))
		_ = req.Reply(ctx, msgSaveFailed)
		return err
	}
	return req.Reply(ctx, "🗑 Deleted reminder: "+removed.Text)
}

func (h *Handlers) cmdStats(ctx context.Context, req *router.Request) error {
	st := h.store.Stats()
	next := "-"
	if !st.NextDue.IsZero() {
		next = st.NextDue.In(h.resolver.Location()).Format(DisplayLayout)
	}
	var b strings.Builder
	b.WriteString("📊 Reminder Stats\n")
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "Owners: %d\n", st.Owners)
	fmt.Fprintf(&b, "Pending: %d\n", st.Pending)
	fmt.Fprintf(&b, "Next due: %s\n", next)
	fmt.Fprintf(&b, "Timezone: %s\n", h.resolver.Location())
	fmt.Fprintf(&b, "Uptime: %s", h.now().Sub(h.startedAt).Truncate(time.Second))
	return req.Reply(ctx, b.String())
}

// Remember is the router fallback: any non-command message, or media with a
// caption, becomes a reminder when its text names a time.
func (h *Handlers) Remember(ctx context.Context, req *router.Request) error {
	// channel posts and anonymous admins carry no user to deliver to
	if req.FromID == 0 {
		return req.Reply(ctx, msgNoSender)
	}
	text := strings.TrimSpace(req.Message.Text)
	dueAt, err := h.resolver.Resolve(text, h.now())
	switch {
	case errors.Is(err, reminder.ErrNoMatch):
		return req.Reply(ctx, msgNoTime)
	case errors.Is(err, reminder.ErrPastTime):
		return req.Reply(ctx, msgPastTime)
	case err != nil:
		return err
	}

	r, err := h.store.Add(ctx, OwnerOf(req.FromID), text, dueAt, attachmentOf(req.Message.Media))
	switch {
	case errors.Is(err, reminder.ErrTooMany):
		return req.Reply(ctx, msgTooMany)
	case err != nil:
		req.Logger.Error("add reminder failed", logx.Err(err))
		_ = req.Reply(ctx, msgSaveFailed)
		return err
	}
	req.Logger.Debug("reminder added",
		logx.String("reminder_id", r.ID),
		logx.Time("due_at", r.DueAt),
		logx.String("media", r.Attachment.Kind().String()),
	)
	return req.Reply(ctx, "✅ Reminder set for "+r.DueAt.Format(DisplayLayout))
}

func attachmentOf(m *kit.Media) reminder.Attachment {
	if m == nil || m.FileID == "" {
		return reminder.NoAttachment()
	}
	switch m.Kind {
	case kit.MediaPhoto:
		return reminder.Photo(m.FileID)
	case kit.MediaDocument:
		return reminder.Document(m.FileID)
	}
	return reminder.NoAttachment()
}
