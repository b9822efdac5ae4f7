package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presbrey/ircq/irc/config"
)

func TestReloadOnHangup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ircd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	root := &rootOptions{ConfigPath: path}
	cfg, _, err := root.load()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, root.level.Level())

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hup := make(chan os.Signal)
	done := make(chan struct{})
	go func() {
		reloadOnHangup(ctx, cfg, hup, root.applyLevel, logger)
		close(done)
	}()

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600))
	hup <- syscall.SIGHUP
	assert.Eventually(t, func() bool {
		return root.level.Level() == slog.LevelWarn
	}, time.Second, 5*time.Millisecond)

	// an invalid file keeps the running level
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))
	hup <- syscall.SIGHUP
	// the second send lands only once the first reload has finished
	hup <- syscall.SIGHUP
	assert.Equal(t, slog.LevelWarn, root.level.Level())
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))
	hup <- syscall.SIGHUP
	assert.Eventually(t, func() bool {
		return root.level.Level() == slog.LevelError
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Contains(t, logs.String(), "config reload failed")
}

func TestDebugFlagSurvivesReload(t *testing.T) {
	root := &rootOptions{Debug: true, level: new(slog.LevelVar)}
	cfg := config.Default()
	cfg.Log.Level = "error"

	root.applyLevel(cfg)
	assert.Equal(t, slog.LevelDebug, root.level.Level())
}
