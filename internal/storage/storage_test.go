package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func sampleSnapshot() Snapshot {
	zone := time.FixedZone("ICT", 7*3600)
	base := time.Date(2025, 3, 14, 19, 30, 0, 0, zone)
	return Snapshot{
		"42": {
			{ID: "a1", Text: "buy milk", Time: base, CreatedAt: base.Add(-time.Hour)},
			{ID: "a2", Text: "call mom", Time: base.Add(90 * time.Minute), Media: &Media{Type: "photo", FileID: "AgAC-1"}},
		},
		"7": {
			{ID: "b1", Text: "send report", Time: base.Add(24 * time.Hour), Media: &Media{Type: "document", FileID: "BQAC-2"}},
		},
	}
}

func assertSameSnapshot(t *testing.T, want, got Snapshot) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("owners = %d, want %d", len(got), len(want))
	}
	for owner, wrecs := range want {
		grecs := got[owner]
		if len(grecs) != len(wrecs) {
			t.Fatalf("owner %s: records = %d, want %d", owner, len(grecs), len(wrecs))
		}
		for i := range wrecs {
			w, g := wrecs[i], grecs[i]
			if w.ID != g.ID || w.Text != g.Text || !w.Time.Equal(g.Time) || !w.CreatedAt.Equal(g.CreatedAt) {
				t.Fatalf("owner %s[%d] = %+v, want %+v", owner, i, g, w)
			}
			if _, off := g.Time.Zone(); off != 7*3600 {
				t.Fatalf("zone offset lost: %v", g.Time)
			}
			if (w.Media == nil) != (g.Media == nil) || (w.Media != nil && *w.Media != *g.Media) {
				t.Fatalf("owner %s[%d] media = %+v, want %+v", owner, i, g.Media, w.Media)
			}
		}
	}
}

func TestBackendsRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite", "memory"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "data", "reminders."+driver)
			cfg := Config{Driver: driver, Path: path}

			be, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			empty, err := be.Load(ctx)
			if err != nil || len(empty) != 0 {
				t.Fatalf("fresh Load = %v, %v", empty, err)
			}
			want := sampleSnapshot()
			if err := be.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if driver == "memory" {
				got, err := be.Load(ctx)
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				assertSameSnapshot(t, want, got)
				return
			}
			_ = be.Close()

			// reopen to prove durability
			be2, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer be2.Close()
			got, err := be2.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			assertSameSnapshot(t, want, got)

			// load -> save -> load is stable
			if err := be2.Save(ctx, got); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			again, err := be2.Load(ctx)
			if err != nil {
				t.Fatalf("second Load: %v", err)
			}
			assertSameSnapshot(t, want, again)
		})
	}
}

func TestSaveReplacesPreviousContent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for _, driver := range []string{"file", "sqlite"} {
		be, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "r.db")}, logx.Nop())
		if err != nil {
			t.Fatalf("%s: Open: %v", driver, err)
		}
		if err := be.Save(ctx, sampleSnapshot()); err != nil {
			t.Fatalf("%s: Save: %v", driver, err)
		}
		if err := be.Save(ctx, Snapshot{}); err != nil {
			t.Fatalf("%s: Save empty: %v", driver, err)
		}
		got, err := be.Load(ctx)
		if err != nil || got.Count() != 0 {
			t.Fatalf("%s: Load after clear = %d records, %v", driver, got.Count(), err)
		}
		_ = be.Close()
	}
}

func TestFileLoadsLegacyFormat(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	legacy := `{
  "42": [
    {"text": "remind me at 8pm", "time": "2025-03-14T20:00:00+07:00", "media": null},
    {"text": "pic", "time": "2025-03-15T09:00:00.123456+07:00", "media": {"type": "photo", "file_id": "AgAC"}}
  ],
  "9": []
}`
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}
	be, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	snap, err := be.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := snap["9"]; ok {
		t.Fatal("owners without reminders should be dropped")
	}
	recs := snap["42"]
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].ID == "" || recs[1].ID == "" || recs[0].ID == recs[1].ID {
		t.Fatalf("ids not backfilled: %q %q", recs[0].ID, recs[1].ID)
	}
	if recs[1].Media == nil || recs[1].Media.Type != "photo" || recs[1].Media.FileID != "AgAC" {
		t.Fatalf("media = %+v", recs[1].Media)
	}
	if recs[0].Time.Hour() != 20 || !recs[0].CreatedAt.IsZero() {
		t.Fatalf("record = %+v", recs[0])
	}
}

func TestFileSaveWritesLegacyCompatibleShape(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	be, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := be.Save(context.Background(), Snapshot{"42": {{ID: "x", Text: "t", Time: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}}}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"time": "2025-01-01T08:00:00Z"`, `"media": null`, `"text": "t"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("saved file missing %s:\n%s", want, s)
		}
	}
	if strings.Contains(s, "created_at") {
		t.Fatalf("zero created_at should be omitted:\n%s", s)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	t.Parallel()
	src := sampleSnapshot()
	cp := src.Clone()
	cp["42"][1].Media.FileID = "changed"
	cp["42"][0].Text = "changed"
	if src["42"][1].Media.FileID != "AgAC-1" || src["42"][0].Text != "buy milk" {
		t.Fatal("clone shares memory with source")
	}
	if src.Count() != 3 {
		t.Fatalf("Count = %d", src.Count())
	}
}
