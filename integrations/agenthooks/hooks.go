// ABOUTME: Hooks type mapping run lifecycle events onto an accumulator.
// ABOUTME: Session handling, user-input capture, tool latency tracking.

package agenthooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BeMonkAI/monkai-trace/buffer"
	"github.com/BeMonkAI/monkai-trace/record"
	"github.com/BeMonkAI/monkai-trace/session"
)

// Options configures Hooks.
type Options struct {
	// Namespace stamped on every record. Required.
	Namespace string
	// Uploader receives finished records. Required.
	Uploader buffer.Uploader[record.ConversationRecord]
	// BatchSize is the record buffer threshold. Zero means the buffer
	// default.
	BatchSize int
	// DisableAutoUpload holds records until an explicit Flush.
	DisableAutoUpload bool
	// Sessions supplies session ids. When nil a manager with the default
	// inactivity timeout is created.
	Sessions *session.Manager
	// UserID identifies the end user for session grouping. Can be set
	// later with SetUserID.
	UserID string
	Logger *slog.Logger
}

type toolStart struct {
	arguments any
	startedAt time.Time
}

// Hooks receives run lifecycle events and turns each run into one
// conversation record. Safe for concurrent use; events of a single run
// are expected in order.
type Hooks struct {
	mu           sync.Mutex
	namespace    string
	userID       string
	pendingInput string
	currentAgent string
	acc          *record.Accumulator
	toolStarts   map[string]toolStart

	sessions *session.Manager
	buf      *buffer.Buffer[record.ConversationRecord]
	logger   *slog.Logger
	now      func() time.Time
}

// New creates hooks uploading finished records through uploader.
func New(opts Options) (*Hooks, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("agenthooks: namespace is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agenthooks")

	buf, err := buffer.New(opts.Uploader, buffer.Options[record.ConversationRecord]{
		BatchSize:         opts.BatchSize,
		DisableAutoUpload: opts.DisableAutoUpload,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("agenthooks: %w", err)
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager(session.DefaultInactivityTimeout, logger)
	}
	return &Hooks{
		namespace:  opts.Namespace,
		userID:     opts.UserID,
		toolStarts: make(map[string]toolStart),
		sessions:   sessions,
		buf:        buf,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// SetUserID sets the user whose session the next run joins. Takes effect
// on the next run; the current run keeps its session.
func (h *Hooks) SetUserID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.userID = id
}

// SetUserInput explicitly provides the user's message for the current or
// next run. Explicit input wins over anything scraped from LLM inputs.
func (h *Hooks) SetUserInput(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc != nil {
		h.acc.CaptureUserInput(text)
		return
	}
	h.pendingInput = text
}

// OnAgentStart opens a run for the first agent; for agents entered via
// handoff it only tracks the active agent name.
func (h *Hooks) OnAgentStart(ctx context.Context, agentName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.currentAgent = agentName
	if h.acc != nil {
		return
	}
	sessionID := h.sessions.GetOrCreateSession(h.userID, h.namespace, false)
	h.acc = record.NewAccumulator(h.namespace, agentName, sessionID, h.logger)
	if h.pendingInput != "" {
		h.acc.CaptureUserInput(h.pendingInput)
		h.pendingInput = ""
	}
}

// OnLLMStart records the system prompt's token cost and scrapes the user
// message from the LLM input when none was captured yet. The input may be
// a plain string or a list of role/content items.
func (h *Hooks) OnLLMStart(ctx context.Context, agentName, systemPrompt string, input any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	if systemPrompt != "" {
		h.acc.EstimateInstructionTokens(systemPrompt)
	}
	if text := extractUserText(input); text != "" {
		h.acc.CaptureUserInput(text)
	}
}

// OnToolStart marks a tool invocation. Arguments are held until the
// matching OnToolEnd supplies the result.
func (h *Hooks) OnToolStart(ctx context.Context, toolName string, arguments any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	h.toolStarts[toolName] = toolStart{arguments: arguments, startedAt: h.now()}
}

// OnToolEnd appends the completed tool call with its measured latency.
// An end without a matching start is still recorded, with zero latency.
func (h *Hooks) OnToolEnd(ctx context.Context, toolName string, result any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	var arguments any
	var latency time.Duration
	if start, ok := h.toolStarts[toolName]; ok {
		arguments = start.arguments
		latency = h.now().Sub(start.startedAt)
		delete(h.toolStarts, toolName)
	}
	h.acc.AppendToolCall(toolName, arguments, result, latency)
}

// OnResponseItem records a provider-internal tool call surfaced in the
// raw model response (web search, file search, code interpreter,
// computer use).
func (h *Hooks) OnResponseItem(ctx context.Context, itemType string, arguments, sources, result any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	h.acc.AppendInternalTool(itemType, arguments, sources, result)
}

// OnHandoff records a transfer of the conversation between agents. The
// run and its session continue under the destination agent.
func (h *Hooks) OnHandoff(ctx context.Context, fromAgent, toAgent string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	h.acc.AppendHandoff(fromAgent, toAgent, "")
	h.currentAgent = toAgent
}

// OnAgentEnd closes the run: the final output is appended (with exact
// usage when the framework reports it), the record is finalized and
// queued. Returns the summary when the enqueue triggered an upload.
func (h *Hooks) OnAgentEnd(ctx context.Context, agentName, output string, usage *record.TokenUsage) *buffer.UploadSummary {
	h.mu.Lock()
	acc := h.acc
	h.acc = nil
	h.currentAgent = ""
	clear(h.toolStarts)
	h.mu.Unlock()

	if acc == nil {
		h.logger.Warn("agent end without active run", "agent", agentName)
		return nil
	}
	if output != "" || usage != nil {
		acc.AppendAssistantMessage(output, usage)
	}
	rec := acc.Finalize()
	if rec == nil {
		return nil
	}
	return h.buf.Enqueue(ctx, *rec)
}

// SessionID returns the current run's session id, or empty when no run
// is active.
func (h *Hooks) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return ""
	}
	return h.acc.SessionID()
}

// Pending returns the number of records queued but not yet uploaded.
func (h *Hooks) Pending() int {
	return h.buf.Len()
}

// Flush uploads all queued records.
func (h *Hooks) Flush(ctx context.Context) buffer.UploadSummary {
	return h.buf.Flush(ctx)
}

// extractUserText pulls the latest user message out of an LLM input. It
// understands plain strings and item lists with role/content fields.
func extractUserText(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case []map[string]any:
		return lastUserContent(v)
	case []any:
		items := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return lastUserContent(items)
	default:
		return ""
	}
}

func lastUserContent(items []map[string]any) string {
	for i := len(items) - 1; i >= 0; i-- {
		role, _ := items[i]["role"].(string)
		if role != "user" {
			continue
		}
		if content, ok := items[i]["content"].(string); ok && content != "" {
			return content
		}
	}
	return ""
}
