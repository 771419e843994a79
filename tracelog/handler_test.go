// ABOUTME: Tests for the buffered log handler: levels, attrs, batching.
// ABOUTME: Captures uploaded entries with an in-memory fake uploader.

package tracelog

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeMonkAI/monkai-trace/buffer"
	"github.com/BeMonkAI/monkai-trace/record"
)

type captureUploader struct {
	mu      sync.Mutex
	entries []record.LogEntry
}

func (u *captureUploader) Upload(_ context.Context, chunk []record.LogEntry) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entries = append(u.entries, chunk...)
	return len(chunk), nil
}

func (u *captureUploader) all() []record.LogEntry {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]record.LogEntry(nil), u.entries...)
}

func newTestHandler(t *testing.T, opts Options) (*Handler, *captureUploader) {
	t.Helper()
	up := &captureUploader{}
	if opts.Namespace == "" {
		opts.Namespace = "acme"
	}
	h, err := NewHandler(up, opts)
	require.NoError(t, err)
	return h, up
}

func TestNewHandler_RequiresNamespace(t *testing.T) {
	_, err := NewHandler(&captureUploader{}, Options{})
	assert.Error(t, err)
}

func TestHandler_ConvertsRecord(t *testing.T) {
	h, up := newTestHandler(t, Options{Agent: "support-bot", SessionID: "s1"})
	logger := slog.New(h)

	logger.Info("user request handled", "path", "/chat", "status", 200)
	h.Flush(context.Background())

	entries := up.all()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "acme", e.Namespace)
	assert.Equal(t, record.LevelInfo, e.Level)
	assert.Equal(t, "user request handled", e.Message)
	assert.Equal(t, "support-bot", e.Agent)
	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, "/chat", e.CustomObject["path"])
	assert.EqualValues(t, 200, e.CustomObject["status"])
	assert.NotEmpty(t, e.Timestamp)
}

func TestHandler_LevelMapping(t *testing.T) {
	h, up := newTestHandler(t, Options{Level: slog.LevelDebug})
	logger := slog.New(h)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")
	logger.Log(context.Background(), slog.LevelError+4, "critical")
	h.Flush(context.Background())

	entries := up.all()
	require.Len(t, entries, 5)
	assert.Equal(t, record.LevelDebug, entries[0].Level)
	assert.Equal(t, record.LevelInfo, entries[1].Level)
	assert.Equal(t, record.LevelWarn, entries[2].Level)
	assert.Equal(t, record.LevelError, entries[3].Level)
	assert.Equal(t, record.LevelError, entries[4].Level)
}

func TestHandler_MinimumLevel(t *testing.T) {
	h, up := newTestHandler(t, Options{Level: slog.LevelWarn})
	logger := slog.New(h)

	logger.Debug("skip")
	logger.Info("skip")
	logger.Warn("keep")
	h.Flush(context.Background())

	entries := up.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "keep", entries[0].Message)
}

func TestHandler_HoistedAttrs(t *testing.T) {
	h, up := newTestHandler(t, Options{Agent: "default-agent"})
	logger := slog.New(h)

	logger.Info("m",
		KeySessionID, "s-override",
		KeyAgent, "other-agent",
		KeyResourceID, "doc-42",
		"kept", "v",
	)
	h.Flush(context.Background())

	entries := up.all()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "s-override", e.SessionID)
	assert.Equal(t, "other-agent", e.Agent)
	assert.Equal(t, "doc-42", e.ResourceID)
	assert.Equal(t, map[string]any{"kept": "v"}, e.CustomObject)
}

func TestHandler_GroupsAndWithAttrs(t *testing.T) {
	h, up := newTestHandler(t, Options{})
	logger := slog.New(h).With("service", "api").WithGroup("req")

	logger.Info("handled", "method", "POST", slog.Group("peer", "ip", "10.0.0.1"))
	h.Flush(context.Background())

	entries := up.all()
	require.Len(t, entries, 1)
	custom := entries[0].CustomObject
	assert.Equal(t, "api", custom["service"])
	assert.Equal(t, "POST", custom["req.method"])
	assert.Equal(t, "10.0.0.1", custom["req.peer.ip"])
}

func TestHandler_SharedBufferAcrossDerived(t *testing.T) {
	h, up := newTestHandler(t, Options{})
	base := slog.New(h)
	derived := base.With("k", "v")

	base.Info("one")
	derived.Info("two")
	assert.Equal(t, 2, h.Len())

	h.Flush(context.Background())
	assert.Len(t, up.all(), 2)
	assert.Equal(t, 0, h.Len())
}

func TestHandler_BatchThreshold(t *testing.T) {
	h, up := newTestHandler(t, Options{BatchSize: 3})
	logger := slog.New(h)

	logger.Info("1")
	logger.Info("2")
	assert.Empty(t, up.all())

	logger.Info("3")
	assert.Len(t, up.all(), 3)
	assert.Equal(t, 0, h.Len())
}

func TestHandler_UploadFailureDoesNotFailLogging(t *testing.T) {
	failing := buffer.UploaderFunc[record.LogEntry](func(context.Context, []record.LogEntry) (int, error) {
		return 0, assert.AnError
	})
	h, err := NewHandler(failing, Options{Namespace: "acme", BatchSize: 1})
	require.NoError(t, err)

	logger := slog.New(h)
	logger.Info("still fine")

	summary := h.Flush(context.Background())
	assert.Equal(t, 0, summary.TotalInserted)
}

func TestHandler_CloseFlushes(t *testing.T) {
	h, up := newTestHandler(t, Options{DisableAutoUpload: true})
	logger := slog.New(h)

	logger.Info("pending")
	require.NoError(t, h.Close(context.Background()))
	assert.Len(t, up.all(), 1)

	// Close is idempotent.
	require.NoError(t, h.Close(context.Background()))
}

func TestHandler_PeriodicFlush(t *testing.T) {
	h, up := newTestHandler(t, Options{
		DisableAutoUpload: true,
		FlushInterval:     10 * time.Millisecond,
	})
	defer h.Close(context.Background())

	slog.New(h).Info("ticked")

	assert.Eventually(t, func() bool {
		return len(up.all()) == 1
	}, time.Second, 5*time.Millisecond)
}
