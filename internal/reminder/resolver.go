package reminder

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Resolver turns free text into an absolute time in one configured zone.
type Resolver struct {
	loc    *time.Location
	parser *when.Parser
	// clock knows only time-of-day rules
	clock *when.Parser
}

func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	c := when.New(nil)
	c.Add(en.Hour(rules.Override), en.HourMinute(rules.Override))
	return &Resolver{loc: loc, parser: w, clock: c}
}

func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve finds the first time expression in text relative to now.
//
// A bare clock time that already passed today ("at 8pm" said at 9pm) moves
// to the same time tomorrow. Anything else in the past ("today at 8pm",
// "2 hours ago") is ErrPastTime.
func (r *Resolver) Resolve(text string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, ErrNoMatch
	}
	now = now.In(r.loc)
	res, err := r.parser.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoMatch, err)
	}
	if res == nil {
		return time.Time{}, ErrNoMatch
	}
	return settle(res.Time.In(r.loc), now, r.bareClock(res.Text, now))
}

// bareClock reports whether the matched phrase is nothing but a time of day.
func (r *Resolver) bareClock(matched string, now time.Time) bool {
	res, err := r.clock.Parse(matched, now)
	if err != nil || res == nil {
		return false
	}
	return strings.TrimSpace(res.Text) == strings.TrimSpace(matched)
}

func settle(due, now time.Time, bareClock bool) (time.Time, error) {
	if due.After(now) {
		return due, nil
	}
	if bareClock && sameDay(due, now) {
		due = due.AddDate(0, 0, 1)
		if due.After(now) {
			return due, nil
		}
	}
	return time.Time{}, ErrPastTime
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
