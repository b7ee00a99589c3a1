package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
)

var ict = time.FixedZone("ICT", 7*3600)

type replyRecorder struct {
	texts []string
}

func (r *replyRecorder) Start(context.Context, chan<- kit.Update) error { return nil }
func (r *replyRecorder) Stop(context.Context) error                     { return nil }
func (r *replyRecorder) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.texts = append(r.texts, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}
func (r *replyRecorder) SendPhoto(context.Context, kit.ChatTarget, string, string) (kit.MessageRef, error) {
	return kit.MessageRef{}, errors.New("unexpected photo")
}
func (r *replyRecorder) SendDocument(context.Context, kit.ChatTarget, string, string) (kit.MessageRef, error) {
	return kit.MessageRef{}, errors.New("unexpected document")
}

func (r *replyRecorder) last(t *testing.T) string {
	t.Helper()
	if len(r.texts) == 0 {
		t.Fatal("no reply sent")
	}
	return r.texts[len(r.texts)-1]
}

type fixture struct {
	h     *Handlers
	store *reminder.Store
	out   *replyRecorder
	now   time.Time
}

func newFixture(t *testing.T, opts ...reminder.StoreOption) *fixture {
	t.Helper()
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, ict)
	opts = append([]reminder.StoreOption{reminder.WithLocation(ict)}, opts...)
	st, err := reminder.OpenStore(context.Background(), storage.NewMemory(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	h := New(st, reminder.NewResolver(ict), WithClock(func() time.Time { return now }))
	return &fixture{h: h, store: st, out: &replyRecorder{}, now: now}
}

func (f *fixture) req(from int64, text string, args ...string) *router.Request {
	return &router.Request{
		Message: &kit.Message{ChatID: from, FromID: from, Text: text},
		Chat:    kit.ChatTarget{ChatID: from},
		FromID:  from,
		Args:    args,
		Adapter: f.out,
	}
}

func TestRememberCreatesReminder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.h.Remember(ctx, f.req(42, "remind me in 1 minute about milk")); err != nil {
		t.Fatal(err)
	}
	if got, want := f.out.last(t), "✅ Reminder set for 2025-03-14 10:01 AM"; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	entries := f.store.List("42")
	if len(entries) != 1 || entries[0].Text != "remind me in 1 minute about milk" {
		t.Fatalf("entries = %+v", entries)
	}
	if !entries[0].Attachment.IsNone() {
		t.Fatalf("text message should carry no attachment")
	}
}

func TestRememberKeepsMedia(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	req := f.req(42, "in 30 minutes read this")
	req.Message.Media = &kit.Media{Kind: kit.MediaDocument, FileID: "BQAC-doc"}

	if err := f.h.Remember(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	entries := f.store.List("42")
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	att := entries[0].Attachment
	if att.Kind() != reminder.AttachDocument || att.Handle() != "BQAC-doc" {
		t.Fatalf("attachment = %v %q", att.Kind(), att.Handle())
	}
}

func TestRememberWithoutSender(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	req := f.req(0, "remind me in 1 minute about milk")
	req.Chat = kit.ChatTarget{ChatID: -100123}
	req.Message.ChatID = -100123

	if err := f.h.Remember(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := f.out.last(t); got != msgNoSender {
		t.Fatalf("reply = %q, want %q", got, msgNoSender)
	}
	if st := f.store.Stats(); st.Pending != 0 {
		t.Fatalf("reminder stored without a sender: %+v", st)
	}
}

func TestRememberRejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t, reminder.WithMaxPerOwner(1))
	ctx := context.Background()

	cases := []struct {
		text string
		want string
	}{
		{"buy some milk", msgNoTime},
		{"", msgNoTime},
		{"in 5 minutes stretch", "✅ Reminder set for 2025-03-14 10:05 AM"},
		{"in 10 minutes stretch again", msgTooMany},
	}
	for _, tc := range cases {
		if err := f.h.Remember(ctx, f.req(7, tc.text)); err != nil {
			t.Fatalf("Remember(%q): %v", tc.text, err)
		}
		if got := f.out.last(t); got != tc.want {
			t.Fatalf("Remember(%q) reply = %q, want %q", tc.text, got, tc.want)
		}
	}
	if n := len(f.store.List("7")); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
}

func TestListFormatting(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.h.cmdList(ctx, f.req(42, "/list")); err != nil {
		t.Fatal(err)
	}
	if got := f.out.last(t); got != msgEmpty {
		t.Fatalf("empty list reply = %q", got)
	}

	_, _ = f.store.Add(ctx, "42", "milk", f.now.Add(time.Minute), reminder.NoAttachment())
	_, _ = f.store.Add(ctx, "42", "bread", f.now.Add(10*time.Hour), reminder.Photo("AgAC"))
	_, _ = f.store.Add(ctx, "99", "not yours", f.now.Add(time.Hour), reminder.NoAttachment())

	if err := f.h.cmdList(ctx, f.req(42, "/list")); err != nil {
		t.Fatal(err)
	}
	want := "🗓 Your Reminders:\n" +
		"1. 2025-03-14 10:01 AM — milk\n" +
		"2. 2025-03-14 08:00 PM — bread 📎"
	if got := f.out.last(t); got != want {
		t.Fatalf("list reply =\n%s\nwant\n%s", got, want)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.store.Add(ctx, "42", "first", f.now.Add(time.Hour), reminder.NoAttachment())
	_, _ = f.store.Add(ctx, "42", "second", f.now.Add(2*time.Hour), reminder.NoAttachment())

	cases := []struct {
		args []string
		want string
	}{
		{nil, msgDeleteUsage},
		{[]string{"abc"}, msgInvalidID},
		{[]string{"0"}, msgInvalidID},
		{[]string{"3"}, msgInvalidID},
		{[]string{"1"}, "🗑 Deleted reminder: first"},
	}
	for _, tc := range cases {
		if err := f.h.cmdDelete(ctx, f.req(42, "/delete", tc.args...)); err != nil {
			t.Fatalf("delete %v: %v", tc.args, err)
		}
		if got := f.out.last(t); got != tc.want {
			t.Fatalf("delete %v reply = %q, want %q", tc.args, got, tc.want)
		}
	}
	left := f.store.List("42")
	if len(left) != 1 || left[0].Text != "second" || left[0].Position != 1 {
		t.Fatalf("remaining = %+v", left)
	}
}

func TestStartAndStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.h.cmdStart(ctx, f.req(1, "/start")); err != nil {
		t.Fatal(err)
	}
	if got := f.out.last(t); !strings.HasPrefix(got, "👋 Smart Reminder Bot running!") || !strings.Contains(got, "/delete <id>") {
		t.Fatalf("start reply = %q", got)
	}

	_, _ = f.store.Add(ctx, "1", "a", f.now.Add(2*time.Hour), reminder.NoAttachment())
	_, _ = f.store.Add(ctx, "2", "b", f.now.Add(time.Hour), reminder.NoAttachment())
	if err := f.h.cmdStats(ctx, f.req(1, "/stats")); err != nil {
		t.Fatal(err)
	}
	got := f.out.last(t)
	for _, want := range []string{"Owners: 2", "Pending: 2", "Next due: 2025-03-14 11:00 AM", "Timezone: ICT"} {
		if !strings.Contains(got, want) {
			t.Fatalf("stats reply lacks %q:\n%s", want, got)
		}
	}
}

func TestCommandTable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seen := map[string]router.Access{}
	for _, c := range f.h.Commands() {
		if c.Handle == nil {
			t.Fatalf("command %q has no handler", c.Name)
		}
		seen[c.Name] = c.Access
	}
	for _, name := range []string{"start", "list", "delete", "stats"} {
		if _, ok := seen[name]; !ok {
			t.Fatalf("missing command %q", name)
		}
	}
	if seen["stats"] != router.AccessOwnerOnly {
		t.Fatal("/stats should be owner only")
	}
}
