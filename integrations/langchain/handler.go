// ABOUTME: callbacks.Handler adapter driving a record accumulator.
// ABOUTME: Exact usage from GenerationInfo, tool latency, nested chains.

package langchain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/BeMonkAI/monkai-trace/buffer"
	"github.com/BeMonkAI/monkai-trace/record"
	"github.com/BeMonkAI/monkai-trace/session"
)

// Input keys, in priority order, checked for the user's message in chain
// inputs.
var inputKeys = []string{"input", "question", "query", "text"}

// Options configures a Handler.
type Options struct {
	// Namespace stamped on every record. Required.
	Namespace string
	// Agent names the chain or agent being instrumented. Required.
	Agent string
	// UserID identifies the end user for session grouping.
	UserID string
	// BatchSize is the record buffer threshold. Zero means the buffer
	// default.
	BatchSize int
	// DisableAutoUpload holds records until an explicit Flush.
	DisableAutoUpload bool
	// Sessions supplies session ids. When nil a manager with the default
	// inactivity timeout is created.
	Sessions *session.Manager
	Logger   *slog.Logger
}

type pendingTool struct {
	name      string
	input     string
	startedAt time.Time
}

// Handler records langchaingo chain runs as conversation records.
type Handler struct {
	callbacks.SimpleHandler

	mu        sync.Mutex
	namespace string
	agent     string
	userID    string
	depth     int
	sawOutput bool
	sawSystem bool
	acc       *record.Accumulator
	tool      *pendingTool

	sessions *session.Manager
	buf      *buffer.Buffer[record.ConversationRecord]
	logger   *slog.Logger
	now      func() time.Time
}

var _ callbacks.Handler = (*Handler)(nil)

// NewHandler creates a handler uploading finished records through
// uploader.
func NewHandler(uploader buffer.Uploader[record.ConversationRecord], opts Options) (*Handler, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("langchain: namespace is required")
	}
	if opts.Agent == "" {
		return nil, fmt.Errorf("langchain: agent name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "langchain")

	buf, err := buffer.New(uploader, buffer.Options[record.ConversationRecord]{
		BatchSize:         opts.BatchSize,
		DisableAutoUpload: opts.DisableAutoUpload,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("langchain: %w", err)
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager(session.DefaultInactivityTimeout, logger)
	}
	return &Handler{
		namespace: opts.Namespace,
		agent:     opts.Agent,
		userID:    opts.UserID,
		sessions:  sessions,
		buf:       buf,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// HandleChainStart opens a run on the outermost chain and captures the
// user's input from the chain inputs.
func (h *Handler) HandleChainStart(ctx context.Context, inputs map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.depth++
	if h.acc == nil {
		sessionID := h.sessions.GetOrCreateSession(h.userID, h.namespace, false)
		h.acc = record.NewAccumulator(h.namespace, h.agent, sessionID, h.logger)
		h.sawOutput = false
		h.sawSystem = false
	}
	if text := inputText(inputs); text != "" {
		h.acc.CaptureUserInput(text)
	}
}

// HandleChainEnd closes the run when the outermost chain finishes. A
// chain output that never went through an LLM content callback is
// appended as the assistant message, estimated.
func (h *Handler) HandleChainEnd(ctx context.Context, outputs map[string]any) {
	h.mu.Lock()
	if h.depth > 0 {
		h.depth--
	}
	if h.acc == nil || h.depth > 0 {
		h.mu.Unlock()
		return
	}
	if !h.sawOutput {
		if text := outputText(outputs); text != "" {
			h.acc.AppendAssistantMessage(text, nil)
		}
	}
	acc := h.acc
	h.acc = nil
	h.tool = nil
	h.mu.Unlock()

	if rec := acc.Finalize(); rec != nil {
		h.buf.Enqueue(ctx, *rec)
	}
}

// HandleChainError closes the run, keeping whatever was recorded before
// the failure.
func (h *Handler) HandleChainError(ctx context.Context, err error) {
	h.logger.Warn("chain failed", "error", err)
	h.HandleChainEnd(ctx, nil)
}

// HandleLLMStart keeps the first prompt as a fallback user input; chain
// inputs and content messages take priority.
func (h *Handler) HandleLLMStart(ctx context.Context, prompts []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil || len(prompts) == 0 {
		return
	}
	h.acc.ObserveUserInput(prompts[0])
}

// HandleLLMGenerateContentStart scrapes the latest human message from
// the model input.
func (h *Handler) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	captured := false
	for i := len(ms) - 1; i >= 0; i-- {
		switch ms[i].Role {
		case llms.ChatMessageTypeHuman:
			if text := contentText(ms[i]); text != "" && !captured {
				h.acc.CaptureUserInput(text)
				captured = true
			}
		case llms.ChatMessageTypeSystem:
			if text := contentText(ms[i]); text != "" && !h.sawSystem {
				h.acc.EstimateInstructionTokens(text)
				h.sawSystem = true
			}
		}
	}
}

// HandleLLMGenerateContentEnd appends the model output with exact usage
// when the provider reports it in GenerationInfo.
func (h *Handler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil || res == nil {
		return
	}
	for i, choice := range res.Choices {
		if choice == nil {
			continue
		}
		var usage *record.TokenUsage
		if i == 0 {
			usage = usageFromGenerationInfo(choice.GenerationInfo)
		}
		h.acc.AppendAssistantMessage(choice.Content, usage)
		h.sawOutput = true
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			h.acc.AppendToolCall(tc.FunctionCall.Name, tc.FunctionCall.Arguments, nil, 0)
		}
	}
}

// HandleLLMError logs the failure; the run stays open for the chain to
// finish or fail.
func (h *Handler) HandleLLMError(ctx context.Context, err error) {
	h.logger.Warn("llm call failed", "error", err)
}

// HandleAgentAction names the tool the agent chose, so the following
// tool callbacks are attributed correctly.
func (h *Handler) HandleAgentAction(ctx context.Context, action schema.AgentAction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	h.tool = &pendingTool{
		name:      action.Tool,
		input:     action.ToolInput,
		startedAt: h.now(),
	}
}

// HandleToolStart marks the tool invocation. The tool name comes from a
// preceding agent action when there was one.
func (h *Handler) HandleToolStart(ctx context.Context, input string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	if h.tool == nil {
		h.tool = &pendingTool{startedAt: h.now()}
	}
	if h.tool.input == "" {
		h.tool.input = input
	}
}

// HandleToolEnd appends the completed tool call with measured latency.
func (h *Handler) HandleToolEnd(ctx context.Context, output string) {
	h.finishTool(output)
}

// HandleToolError records the failed call with the error as its result.
func (h *Handler) HandleToolError(ctx context.Context, err error) {
	h.finishTool(fmt.Sprintf("error: %v", err))
}

func (h *Handler) finishTool(result string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acc == nil {
		return
	}
	name := ""
	var input any
	var latency time.Duration
	if h.tool != nil {
		name = h.tool.name
		if h.tool.input != "" {
			input = h.tool.input
		}
		latency = h.now().Sub(h.tool.startedAt)
		h.tool = nil
	}
	h.acc.AppendToolCall(name, input, result, latency)
}

// Pending returns the number of records queued but not yet uploaded.
func (h *Handler) Pending() int {
	return h.buf.Len()
}

// Flush uploads all queued records.
func (h *Handler) Flush(ctx context.Context) buffer.UploadSummary {
	return h.buf.Flush(ctx)
}

// inputText picks the user's message out of chain inputs.
func inputText(inputs map[string]any) string {
	for _, key := range inputKeys {
		if s, ok := inputs[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// outputText picks the final answer out of chain outputs.
func outputText(outputs map[string]any) string {
	for _, key := range []string{"output", "text", "answer"} {
		if s, ok := outputs[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// contentText concatenates the text parts of a message.
func contentText(m llms.MessageContent) string {
	var text string
	for _, part := range m.Parts {
		if t, ok := part.(llms.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += t.Text
		}
	}
	return text
}

// usageFromGenerationInfo extracts exact token counts the langchaingo
// providers put into GenerationInfo. Returns nil when absent so callers
// fall back to estimation.
func usageFromGenerationInfo(info map[string]any) *record.TokenUsage {
	if info == nil {
		return nil
	}
	input := intValue(info["PromptTokens"])
	output := intValue(info["CompletionTokens"])
	if input == 0 && output == 0 {
		return nil
	}
	return &record.TokenUsage{Input: input, Output: output}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
