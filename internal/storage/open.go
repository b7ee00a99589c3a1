package storage

import (
	"context"
	"fmt"
	"strings"

	logx "remindbot/pkg/logx"
)

// Open initializes the configured backend.
func Open(cfg Config, log logx.Logger) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driverName(driver)))

	switch driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func driverName(d string) string {
	if d == "" {
		return "file"
	}
	return d
}

type memoryBackend struct {
	snap Snapshot
}

// NewMemory returns a backend that keeps the last saved snapshot in memory.
func NewMemory() Backend { return &memoryBackend{snap: Snapshot{}} }

func (m *memoryBackend) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.snap.Clone(), nil
}

func (m *memoryBackend) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.snap = snap.Clone()
	return nil
}

func (m *memoryBackend) Close() error { return nil }
