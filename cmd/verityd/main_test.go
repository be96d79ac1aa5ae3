package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity"
	"github.com/xraph/verity/config"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/types"
)

func TestRunDispatch(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
		out  string
		err  string
	}{
		{"no command", []string{"verityd"}, 2, "", "Usage"},
		{"version", []string{"verityd", "version"}, 0, "verityd dev", ""},
		{"help", []string{"verityd", "help"}, 0, "Commands:", ""},
		{"unknown", []string{"verityd", "frobnicate"}, 2, "", "Unknown command: frobnicate"},
		{"bad flag", []string{"verityd", "serve", "-nope"}, 2, "", "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.code, Run(tt.args, &stdout, &stderr))
			assert.Contains(t, stdout.String(), tt.out)
			assert.Contains(t, stderr.String(), tt.err)
		})
	}
}

func TestMigrateSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verity.toml")
	dsn := filepath.Join(dir, "db", "verity.db")
	require.NoError(t, os.WriteFile(path, []byte("[store]\ndriver = \"sqlite\"\ndsn = \""+dsn+"\"\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"verityd", "migrate", "-config", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "migrated sqlite store")
	assert.FileExists(t, dsn)

	// A second run finds nothing to apply.
	code = Run([]string{"verityd", "migrate", "-config", path}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
}

func TestMigrateRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verity.toml")
	require.NoError(t, os.WriteFile(path, []byte("[store]\ndriver = \"oracle\"\n"), 0o600))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, Run([]string{"verityd", "migrate", "-config", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown store.driver")
}

func TestBuildEngineWiresPlugins(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: "memory"}
	cfg.Params.Admins = []string{"ops"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng, err := buildEngine(ctx, cfg, logger, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() { _ = eng.Stop() })

	assert.Equal(t, 2, eng.Plugins().Count(), "metrics and audit")
	p, err := eng.Params(ctx)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin("ops"))
}

func TestFinalizeDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	eng := verity.New(memory.New(), verity.WithClock(func() time.Time { return now }))
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() { _ = eng.Stop() })

	pr, err := eng.Register(ctx, "acme", types.USD(100000))
	require.NoError(t, err)
	ev, err := eng.ScheduleEvent(ctx, "acme", pr.ID, now.Add(time.Minute), nil)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, err = eng.SubmitResult(ctx, "acme", ev.ID, verity.Submission{Payload: []byte(`{"home":1}`)})
	require.NoError(t, err)

	n, err := finalizeDue(ctx, eng, now)
	require.NoError(t, err)
	assert.Zero(t, n, "window still open")

	now = now.Add(time.Hour)
	n, err = finalizeDue(ctx, eng, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r, err := eng.ResultStatus(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, r.Finalized())
}
