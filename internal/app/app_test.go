package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/observability/ops"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.ApplyDefaults()
	return cfg
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		driver, path, busy string
		wantDriver         string
		wantPath           string
		wantBusy           time.Duration
		wantErr            bool
	}{
		{driver: "", path: "", wantDriver: "file", wantPath: config.DefaultStoragePath},
		{driver: "file", path: "/data/r.json", wantDriver: "file", wantPath: "/data/r.json"},
		{driver: "sqlite", path: config.DefaultStoragePath, wantDriver: "sqlite", wantPath: defaultSQLitePath, wantBusy: 5 * time.Second},
		{driver: "SQLite3", path: "/data/r.db", busy: "2s", wantDriver: "sqlite", wantPath: "/data/r.db", wantBusy: 2 * time.Second},
		{driver: "memory", wantDriver: "memory"},
		{driver: "sqlite", busy: "soon", wantErr: true},
		{driver: "redis", wantErr: true},
	}
	for _, tc := range cases {
		cfg := baseConfig()
		cfg.Storage = config.StorageConfig{Driver: tc.driver, Path: tc.path, BusyTimeout: tc.busy}
		got, err := mapStorageConfig(cfg)
		if tc.wantErr {
			if err == nil {
				t.Errorf("driver %q: expected error", tc.driver)
			}
			continue
		}
		if err != nil {
			t.Fatalf("driver %q: %v", tc.driver, err)
		}
		if got.Driver != tc.wantDriver || got.Path != tc.wantPath || got.BusyTimeout != tc.wantBusy {
			t.Errorf("driver %q: got %+v", tc.driver, got)
		}
	}
}

func TestMapDeliveryConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	got, err := mapDeliveryConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Interval != delivery.DefaultInterval || got.SendTimeout != delivery.DefaultSendTimeout {
		t.Fatalf("defaults = %+v", got)
	}
	cfg.Reminders.PollInterval = "10s"
	cfg.Reminders.SendTimeout = "5"
	got, err = mapDeliveryConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Interval != 10*time.Second || got.SendTimeout != 5*time.Second {
		t.Fatalf("explicit = %+v", got)
	}
}

func TestValidateReloadOpsBind(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Ops.Enabled = true
	if err := validateReload(cfg); err != nil {
		t.Fatalf("loopback default rejected: %v", err)
	}
	cfg.Ops.Addr = "0.0.0.0:9090"
	if err := validateReload(cfg); err == nil || !strings.Contains(err.Error(), "ops.token") {
		t.Fatalf("public bind without token: %v", err)
	}
	cfg.Ops.Token = "t"
	if err := validateReload(cfg); err != nil {
		t.Fatalf("public bind with token: %v", err)
	}
	if oc := mapOpsConfig(cfg); !oc.Metrics {
		t.Fatal("metrics should default to on")
	}
}

func TestApplyConfigReconfiguresOps(t *testing.T) {
	t.Parallel()
	logSvc, log := logx.New(logx.Config{Level: "error"}, nil)
	t.Cleanup(func() { _ = logSvc.Close() })
	a := &App{
		log:  log,
		logs: logSvc,
		cmdm: router.NewCommandManager(log, nil, router.Options{}),
		ops:  ops.New(ops.Config{}, log, nil, nil),
	}
	ctx := context.Background()
	prev := baseConfig()
	next := baseConfig()
	next.Ops.Enabled = true
	next.Ops.Addr = "127.0.0.1:0"
	next.Telegram.OwnerUserIDs = []int64{1}
	next.Reminders.UserRatePerMin = 5

	a.applyConfig(ctx, prev, next)
	t.Cleanup(func() { a.ops.Stop(context.Background()) })
	if a.ops.Addr() == "" {
		t.Fatal("ops server should run after reload enabled it")
	}

	off := baseConfig()
	a.applyConfig(ctx, next, off)
	if a.ops.Addr() != "" {
		t.Fatal("ops server should stop after reload disabled it")
	}
}

func TestStepHonorsDeadline(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop()}
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	a.step(context.Background(), "stuck", 50*time.Millisecond, func(c context.Context) error {
		<-release
		return nil
	})
	if took := time.Since(start); took > time.Second {
		t.Fatalf("step took %v, want it bounded by its max", took)
	}

	ran := false
	a.step(context.Background(), "quick", time.Second, func(context.Context) error { ran = true; return nil })
	if !ran {
		t.Fatal("quick step did not run")
	}
}

func TestHealthBeforeStart(t *testing.T) {
	t.Parallel()
	a := &App{}
	if err := a.health(); err == nil {
		t.Fatal("health should fail before Start")
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed when never started")
	}
}
