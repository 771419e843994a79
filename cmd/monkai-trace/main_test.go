// ABOUTME: Tests for the CLI's colorized slog handler
// ABOUTME: Covers level rendering, WithAttrs, and dotted group prefixes

package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(&colorHandler{w: &buf, level: level}), &buf
}

func TestColorHandler_RendersLevelAndAttrs(t *testing.T) {
	color.NoColor = true
	logger, buf := newTestLogger(slog.LevelInfo)

	logger.Info("upload complete", "inserted", 7)

	out := buf.String()
	assert.Contains(t, out, "INF ")
	assert.Contains(t, out, "upload complete")
	assert.Contains(t, out, "inserted=7")
}

func TestColorHandler_MinimumLevel(t *testing.T) {
	color.NoColor = true
	logger, buf := newTestLogger(slog.LevelWarn)

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "WRN kept")
}

func TestColorHandler_GroupsPrefixKeys(t *testing.T) {
	color.NoColor = true
	logger, buf := newTestLogger(slog.LevelDebug)

	logger.WithGroup("req").With("method", "POST").WithGroup("peer").Info("handled", "ip", "10.0.0.1")

	out := buf.String()
	assert.Contains(t, out, "req.method=POST")
	assert.Contains(t, out, "req.peer.ip=10.0.0.1")
}

func TestColorHandler_DerivedHandlersShareWriter(t *testing.T) {
	color.NoColor = true
	logger, buf := newTestLogger(slog.LevelInfo)

	derived := logger.With("component", "spool")
	derived.Error("open failed")

	out := buf.String()
	require.Contains(t, out, "ERR open failed")
	assert.Contains(t, out, "component=spool")
}
