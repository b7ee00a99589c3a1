package reminder

import (
	"errors"
	"testing"
	"time"
)

var ict = time.FixedZone("ICT", 7*3600)

func TestResolveNoTimeExpression(t *testing.T) {
	t.Parallel()
	r := NewResolver(ict)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, ict)
	for _, text := range []string{"", "   ", "hello", "buy some milk", "remind me about the cake"} {
		if _, err := r.Resolve(text, now); !errors.Is(err, ErrNoMatch) {
			t.Errorf("Resolve(%q) error = %v, want ErrNoMatch", text, err)
		}
	}
}

func TestResolveRelative(t *testing.T) {
	t.Parallel()
	r := NewResolver(ict)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, ict)

	cases := []struct {
		text string
		want time.Time
	}{
		{"remind me in 1 minute about milk", now.Add(time.Minute)},
		{"Remind me in 30 minutes", now.Add(30 * time.Minute)},
		{"in 2 hours call mom", now.Add(2 * time.Hour)},
	}
	for _, tc := range cases {
		got, err := r.Resolve(tc.text, now)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.text, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("Resolve(%q) = %v, want %v", tc.text, got, tc.want)
		}
		if got.Location() != ict {
			t.Errorf("Resolve(%q) zone = %v, want ICT", tc.text, got.Location())
		}
	}
}

func TestResolveWallClockLaterToday(t *testing.T) {
	t.Parallel()
	r := NewResolver(ict)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, ict)
	got, err := r.Resolve("remind me at 8pm", now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 3, 14, 20, 0, 0, 0, ict)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveWallClockEarlierTodayRollsForward(t *testing.T) {
	t.Parallel()
	r := NewResolver(ict)
	now := time.Date(2025, 3, 14, 21, 0, 0, 0, ict)
	got, err := r.Resolve("remind me at 8pm", now)
	if err != nil {
		t.Fatal(err)
	}
	naive := time.Date(2025, 3, 14, 20, 0, 0, 0, ict)
	if d := got.Sub(naive); d != 24*time.Hour {
		t.Fatalf("got %v, want naive + 24h (diff %v)", got, d)
	}
}

func TestResolvePastExpressions(t *testing.T) {
	t.Parallel()
	r := NewResolver(ict)
	now := time.Date(2025, 3, 14, 21, 0, 0, 0, ict)
	for _, text := range []string{
		"today at 8pm",
		"2 hours ago",
		"5 minutes ago",
		"yesterday at 5pm",
	} {
		got, err := r.Resolve(text, now)
		if !errors.Is(err, ErrPastTime) {
			t.Errorf("Resolve(%q) = %v, %v; want ErrPastTime", text, got, err)
		}
	}
}

func TestResolveBareClockWithMinutesRollsForward(t *testing.T) {
	t.Parallel()
	r := NewResolver(ict)
	now := time.Date(2025, 3, 14, 21, 0, 0, 0, ict)
	got, err := r.Resolve("call mom at 7:30pm", now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 3, 15, 19, 30, 0, 0, ict)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSettle(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 14, 21, 0, 0, 0, ict)
	cases := []struct {
		name      string
		due       time.Time
		bareClock bool
		want      time.Time
		wantErr   error
	}{
		{"future", now.Add(time.Minute), false, now.Add(time.Minute), nil},
		{"exactly now", now, true, now.AddDate(0, 0, 1), nil},
		{"earlier today", now.Add(-time.Hour), true, now.Add(23 * time.Hour), nil},
		{"earlier today with a date", now.Add(-time.Hour), false, time.Time{}, ErrPastTime},
		{"yesterday", now.AddDate(0, 0, -1), true, time.Time{}, ErrPastTime},
		{"last year", now.AddDate(-1, 0, 0), false, time.Time{}, ErrPastTime},
	}
	for _, tc := range cases {
		got, err := settle(tc.due, now, tc.bareClock)
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.wantErr)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestResolverDefaultsToUTC(t *testing.T) {
	t.Parallel()
	if NewResolver(nil).Location() != time.UTC {
		t.Fatal("nil location should default to UTC")
	}
}
