package reminder

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Store is the process-wide reminder set. Every public method runs under one
// mutex, persistence included, so the backend never sees interleaved writes.
// A mutation that cannot be persisted is rolled back before returning.
type Store struct {
	mu     sync.Mutex
	owners map[string][]Reminder
	closed bool

	backend     storage.Backend
	bus         eventbus.Bus
	log         logx.Logger
	loc         *time.Location
	maxPerOwner int
	now         func() time.Time
	newID       func() string
}

type StoreOption func(*Store)

func WithBus(b eventbus.Bus) StoreOption {
	return func(s *Store) {
		if b != nil {
			s.bus = b
		}
	}
}

func WithLogger(log logx.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithLocation sets the zone loaded times are converted to.
func WithLocation(loc *time.Location) StoreOption {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMaxPerOwner caps pending reminders per owner; 0 disables the cap.
func WithMaxPerOwner(n int) StoreOption {
	return func(s *Store) { s.maxPerOwner = n }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenStore loads the persisted set from backend.
func OpenStore(ctx context.Context, backend storage.Backend, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("reminder store: nil backend")
	}
	s := &Store{
		owners:  map[string][]Reminder{},
		backend: backend,
		bus:     eventbus.Nop(),
		loc:     time.UTC,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}

	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	for owner, recs := range snap {
		for _, rec := range recs {
			s.owners[owner] = append(s.owners[owner], s.fromRecord(owner, rec))
		}
	}
	st := s.Stats()
	s.log.Info("reminders loaded", logx.Int("owners", st.Owners), logx.Int("pending", st.Pending))
	return s, nil
}

// Add appends a reminder to owner's list and persists it.
// The due time is not validated here; callers resolve it first.
func (s *Store) Add(ctx context.Context, owner, text string, dueAt time.Time, att Attachment) (Reminder, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Reminder{}, errors.New("reminder store: empty owner")
	}
	r := Reminder{
		ID:         s.newID(),
		Owner:      owner,
		Text:       text,
		DueAt:      dueAt.In(s.loc),
		Attachment: att,
		CreatedAt:  s.now().In(s.loc),
	}

	s.mu.Lock()
	prev, had := s.owners[owner]
	if s.maxPerOwner > 0 && len(prev) >= s.maxPerOwner {
		s.mu.Unlock()
		return Reminder{}, ErrTooMany
	}
	next := make([]Reminder, len(prev), len(prev)+1)
	copy(next, prev)
	s.owners[owner] = append(next, r)
	if err := s.persistLocked(ctx, "add"); err != nil {
		if had {
			s.owners[owner] = prev
		} else {
			delete(s.owners, owner)
		}
		s.mu.Unlock()
		return Reminder{}, err
	}
	s.mu.Unlock()

	s.publish(eventbus.ReminderAdded, r)
	return r, nil
}

// List returns owner's reminders with 1-based positions. Never nil.
func (s *Store) List(owner string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.owners[owner]
	out := make([]Entry, 0, len(rs))
	for i, r := range rs {
		out = append(out, Entry{Position: i + 1, Reminder: r})
	}
	return out
}

// DeleteAt removes the reminder at 1-based position.
func (s *Store) DeleteAt(ctx context.Context, owner string, position int) (Reminder, error) {
	s.mu.Lock()
	prev := s.owners[owner]
	if position < 1 || position > len(prev) {
		s.mu.Unlock()
		return Reminder{}, ErrOutOfRange
	}
	removed := prev[position-1]
	next := make([]Reminder, 0, len(prev)-1)
	next = append(next, prev[:position-1]...)
	next = append(next, prev[position:]...)
	if len(next) == 0 {
		delete(s.owners, owner)
	} else {
		s.owners[owner] = next
	}
	if err := s.persistLocked(ctx, "delete"); err != nil {
		s.owners[owner] = prev
		s.mu.Unlock()
		return Reminder{}, err
	}
	s.mu.Unlock()

	s.publish(eventbus.ReminderDeleted, removed)
	return removed, nil
}

// PopDue removes and returns every reminder due at or before now, owners in
// ascending order and insertion order within an owner. Nothing is written
// when nothing is due. If the write fails the reminders are put back and
// nothing is returned.
func (s *Store) PopDue(ctx context.Context, now time.Time) ([]Due, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make([]string, 0, len(s.owners))
	for o := range s.owners {
		owners = append(owners, o)
	}
	sort.Slice(owners, func(i, j int) bool { return ownerLess(owners[i], owners[j]) })

	var due []Due
	next := make(map[string][]Reminder, len(s.owners))
	for _, owner := range owners {
		var keep []Reminder
		for _, r := range s.owners[owner] {
			if r.DueAt.After(now) {
				keep = append(keep, r)
				continue
			}
			due = append(due, Due{Owner: owner, Reminder: r})
		}
		if len(keep) > 0 {
			next[owner] = keep
		}
	}
	if len(due) == 0 {
		return []Due{}, nil
	}

	prev := s.owners
	s.owners = next
	if err := s.persistLocked(ctx, "pop_due"); err != nil {
		s.owners = prev
		return nil, err
	}
	return due, nil
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, rs := range s.owners {
		if len(rs) == 0 {
			continue
		}
		st.Owners++
		st.Pending += len(rs)
		for _, r := range rs {
			if st.NextDue.IsZero() || r.DueAt.Before(st.NextDue) {
				st.NextDue = r.DueAt
			}
		}
	}
	return st
}

// Close waits for an in-flight save, then closes the backend. Mutations after
// Close fail with a PersistenceError wrapping ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}

func (s *Store) persistLocked(ctx context.Context, op string) error {
	if s.closed {
		return &PersistenceError{Op: op, Err: ErrStoreClosed}
	}
	snap := make(storage.Snapshot, len(s.owners))
	for owner, rs := range s.owners {
		recs := make([]storage.Record, 0, len(rs))
		for _, r := range rs {
			recs = append(recs, toRecord(r))
		}
		snap[owner] = recs
	}
	if err := s.backend.Save(ctx, snap); err != nil {
		s.log.Error("persist failed", logx.String("op", op), logx.Err(err))
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) publish(typ string, r Reminder) {
	s.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.ReminderEvent{
		Owner:      r.Owner,
		ReminderID: r.ID,
		Media:      r.Attachment.Kind().String(),
	}})
}

func toRecord(r Reminder) storage.Record {
	rec := storage.Record{ID: r.ID, Text: r.Text, Time: r.DueAt, CreatedAt: r.CreatedAt}
	if !r.Attachment.IsNone() {
		rec.Media = &storage.Media{Type: r.Attachment.Kind().String(), FileID: r.Attachment.Handle()}
	}
	return rec
}

func (s *Store) fromRecord(owner string, rec storage.Record) Reminder {
	r := Reminder{
		ID:    rec.ID,
		Owner: owner,
		Text:  rec.Text,
		DueAt: rec.Time.In(s.loc),
	}
	if r.ID == "" {
		r.ID = s.newID()
	}
	if !rec.CreatedAt.IsZero() {
		r.CreatedAt = rec.CreatedAt.In(s.loc)
	}
	if rec.Media != nil {
		kind, ok := ParseAttachmentKind(rec.Media.Type)
		if !ok {
			s.log.Warn("unknown media type, delivering as text",
				logx.String("owner", owner), logx.String("id", r.ID), logx.String("type", rec.Media.Type))
		}
		if kind != AttachNone {
			r.Attachment = Attachment{kind: kind, handle: rec.Media.FileID}
		}
	}
	return r
}

// ownerLess orders numeric owners (chat ids) numerically, anything else lexically.
func ownerLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}
