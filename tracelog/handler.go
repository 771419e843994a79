// ABOUTME: Buffered slog.Handler converting records into API log entries.
// ABOUTME: Group-aware attr flattening, level mapping, periodic flush.

package tracelog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BeMonkAI/monkai-trace/buffer"
	"github.com/BeMonkAI/monkai-trace/record"
)

// DefaultBatchSize is the log batch size when none is configured. Logs
// batch larger than records since entries are small and frequent.
const DefaultBatchSize = 50

// Attr keys hoisted out of the custom object onto the entry itself.
const (
	KeySessionID  = "session_id"
	KeyAgent      = "agent"
	KeyResourceID = "resource_id"
)

// Options configures a Handler.
type Options struct {
	// Namespace stamped on every entry. Required.
	Namespace string
	// Agent and SessionID are defaults for entries that do not carry
	// their own via the hoisted attr keys.
	Agent     string
	SessionID string
	// Level is the minimum level shipped. Defaults to slog.LevelInfo.
	Level slog.Leveler
	// BatchSize is the upload threshold. Defaults to DefaultBatchSize.
	BatchSize int
	// DisableAutoUpload holds entries until an explicit Flush.
	DisableAutoUpload bool
	// FlushInterval, when positive, flushes pending entries on a timer
	// regardless of batch size. Useful for low-traffic services.
	FlushInterval time.Duration
	// Logger receives the handler's own diagnostics (upload failures).
	Logger *slog.Logger
}

// Handler is a slog.Handler shipping records to the collection API.
// WithAttrs and WithGroup derivatives share one buffer, so a single
// Flush or Close drains entries from every derived logger.
type Handler struct {
	namespace string
	agent     string
	sessionID string
	level     slog.Leveler
	attrs     []slog.Attr
	groups    []string

	buf    *buffer.Buffer[record.LogEntry]
	logger *slog.Logger

	tickerStop chan struct{}
	tickerOnce *sync.Once
}

// NewHandler creates a handler draining into uploader.
func NewHandler(uploader buffer.Uploader[record.LogEntry], opts Options) (*Handler, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("tracelog: namespace is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tracelog")

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	buf, err := buffer.New(uploader, buffer.Options[record.LogEntry]{
		BatchSize:         batchSize,
		DisableAutoUpload: opts.DisableAutoUpload,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("tracelog: %w", err)
	}

	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	h := &Handler{
		namespace:  opts.Namespace,
		agent:      opts.Agent,
		sessionID:  opts.SessionID,
		level:      level,
		buf:        buf,
		logger:     logger,
		tickerStop: make(chan struct{}),
		tickerOnce: &sync.Once{},
	}
	if opts.FlushInterval > 0 {
		go h.flushLoop(opts.FlushInterval)
	}
	return h, nil
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler. The entry is queued and uploaded with
// the batch; Handle itself only hits the network when the queue reaches
// the batch size.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	entry := record.LogEntry{
		Namespace: h.namespace,
		Level:     mapLevel(r.Level),
		Message:   r.Message,
		Agent:     h.agent,
		SessionID: h.sessionID,
		Timestamp: r.Time.UTC().Format(time.RFC3339),
	}
	if r.Time.IsZero() {
		entry.Timestamp = record.Now()
	}

	custom := make(map[string]any)
	// Handler attrs were qualified with their group path in WithAttrs.
	for _, a := range h.attrs {
		h.applyAttr(&entry, custom, nil, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.applyAttr(&entry, custom, h.groups, a)
		return true
	})
	if len(custom) > 0 {
		entry.CustomObject = custom
	}

	h.buf.Enqueue(ctx, entry)
	return nil
}

// applyAttr folds one attr into the entry: reserved top-level keys set
// entry fields, everything else lands in the custom object with group
// names as dotted prefixes.
func (h *Handler) applyAttr(entry *record.LogEntry, custom map[string]any, groups []string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}

	if len(groups) == 0 && v.Kind() != slog.KindGroup {
		switch a.Key {
		case KeySessionID:
			entry.SessionID = v.String()
			return
		case KeyAgent:
			entry.Agent = v.String()
			return
		case KeyResourceID:
			entry.ResourceID = v.String()
			return
		}
	}

	if v.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(append([]string{}, groups...), a.Key)
		}
		for _, ga := range v.Group() {
			h.applyAttr(entry, custom, inner, ga)
		}
		return
	}

	key := a.Key
	for i := len(groups) - 1; i >= 0; i-- {
		key = groups[i] + "." + key
	}
	custom[key] = attrValue(v)
}

// attrValue converts a resolved slog.Value into a JSON-friendly value.
func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	default:
		return record.Normalize(v.Any())
	}
}

// mapLevel maps slog levels onto the API's level vocabulary. Levels above
// Error collapse to error.
func mapLevel(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return record.LevelDebug
	case level < slog.LevelWarn:
		return record.LevelInfo
	case level < slog.LevelError:
		return record.LevelWarn
	default:
		return record.LevelError
	}
}

// WithAttrs implements slog.Handler. The derived handler shares the
// parent's buffer and flush loop.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		// Pre-qualify with the current group path so later record attrs
		// outside the group do not collide.
		newAttrs = append(newAttrs, qualify(h.groups, a))
	}
	clone := *h
	clone.attrs = newAttrs
	return &clone
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	clone := *h
	clone.groups = newGroups
	return &clone
}

// qualify wraps a in the given group path so it keeps its prefix even
// when handled under a different group state.
func qualify(groups []string, a slog.Attr) slog.Attr {
	for i := len(groups) - 1; i >= 0; i-- {
		a = slog.Group(groups[i], a)
	}
	return a
}

// Len returns the number of entries waiting for upload.
func (h *Handler) Len() int {
	return h.buf.Len()
}

// Flush uploads everything currently queued.
func (h *Handler) Flush(ctx context.Context) buffer.UploadSummary {
	return h.buf.Flush(ctx)
}

// Close stops the periodic flush loop and drains the buffer. Safe to call
// more than once.
func (h *Handler) Close(ctx context.Context) error {
	h.tickerOnce.Do(func() { close(h.tickerStop) })
	summary := h.buf.Flush(ctx)
	if n := summary.FailedItems(); n > 0 {
		return fmt.Errorf("closing log handler: %d entries not uploaded", n)
	}
	return nil
}

func (h *Handler) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if h.buf.Len() > 0 {
				h.buf.Flush(context.Background())
			}
		case <-h.tickerStop:
			return
		}
	}
}
