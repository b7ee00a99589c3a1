package storage

import (
	"context"
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON document at Path
//   - "sqlite": SQLite database file at Path
//   - "memory": nothing is written to disk
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Media is the persisted attachment descriptor.
// Type is "photo" or "document"; FileID is the transport's opaque handle.
type Media struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
}

// Record is one persisted reminder. The JSON shape matches reminders.json
// files written by earlier versions of the bot, which had no id/created_at.
type Record struct {
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text"`
	Time      time.Time `json:"time"`
	Media     *Media    `json:"media"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Snapshot is the whole reminder set keyed by owner, in insertion order per owner.
type Snapshot map[string][]Record

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for owner, recs := range s {
		cp := make([]Record, len(recs))
		for i, r := range recs {
			cp[i] = r
			if r.Media != nil {
				m := *r.Media
				cp[i].Media = &m
			}
		}
		out[owner] = cp
	}
	return out
}

// Count returns the number of records across all owners.
func (s Snapshot) Count() int {
	n := 0
	for _, recs := range s {
		n += len(recs)
	}
	return n
}

// Backend stores snapshots. Save replaces everything previously saved.
// Implementations are not required to be safe for concurrent use; the
// reminder store serializes access.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}
