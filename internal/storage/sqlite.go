package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteBackend struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; the reminder store already serializes access
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := migrateUp(db, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteBackend{db: db, log: log}, nil
}

// migrateUp applies the embedded migrations. The migrate instance is not
// closed because that would close db as well.
func migrateUp(db *sql.DB, log logx.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cannot open migrations: %w", err)
	}
	defer src.Close()

	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("cannot create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("cannot create migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("cannot migrate up: %w", err)
	}
	if v, dirty, err := m.Version(); err == nil {
		log.Debug("schema ready", logx.Uint64("version", uint64(v)), logx.Bool("dirty", dirty))
	}
	return nil
}

func (s *sqliteBackend) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, id, text, due_at, media_type, media_handle, created_at
		   FROM reminders ORDER BY owner, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var (
			owner, id, text, dueAt, createdAt string
			mediaType, mediaHandle            sql.NullString
		)
		if err := rows.Scan(&owner, &id, &text, &dueAt, &mediaType, &mediaHandle, &createdAt); err != nil {
			return nil, err
		}
		rec := Record{ID: id, Text: text}
		if rec.Time, err = time.Parse(time.RFC3339Nano, dueAt); err != nil {
			return nil, fmt.Errorf("reminder %s: bad due_at %q: %w", id, dueAt, err)
		}
		if createdAt != "" {
			if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
				return nil, fmt.Errorf("reminder %s: bad created_at %q: %w", id, createdAt, err)
			}
		}
		if mediaType.Valid && mediaType.String != "" {
			rec.Media = &Media{Type: mediaType.String, FileID: mediaHandle.String}
		}
		snap[owner] = append(snap[owner], rec)
	}
	return snap, rows.Err()
}

// Save replaces every row in one transaction.
func (s *sqliteBackend) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reminders(id, owner, seq, text, due_at, media_type, media_handle, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for owner, recs := range snap {
		for i, r := range recs {
			var created string
			if !r.CreatedAt.IsZero() {
				created = r.CreatedAt.Format(time.RFC3339Nano)
			}
			_, err := stmt.ExecContext(ctx,
				r.ID, owner, i, r.Text, r.Time.Format(time.RFC3339Nano),
				nullMedia(r.Media, true), nullMedia(r.Media, false), created,
			)
			if err != nil {
				return fmt.Errorf("insert reminder %s: %w", r.ID, err)
			}
		}
	}
	return tx.Commit()
}

func nullMedia(m *Media, kind bool) any {
	if m == nil {
		return nil
	}
	if kind {
		return m.Type
	}
	return m.FileID
}

func (s *sqliteBackend) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
