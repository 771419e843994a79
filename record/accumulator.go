// ABOUTME: Accumulator collects lifecycle events from one agent run into a record.
// ABOUTME: Fail-soft by design: malformed events degrade, they never propagate.

package record

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// placeholderTool substitutes for a missing tool name. Losing telemetry for
// a crash is worse than recording approximate telemetry.
const placeholderTool = "unknown_tool"

// internalToolNames maps provider-internal call types to display names.
// These tools never pass through the application's own tool hooks.
var internalToolNames = map[string]string{
	"web_search_call":       "web_search",
	"file_search_call":      "file_search",
	"code_interpreter_call": "code_interpreter",
	"computer_call":         "computer_use",
}

// InternalToolName returns the display name for a provider-internal tool
// call type, or the type itself when it is not a known one.
func InternalToolName(toolType string) string {
	if name, ok := internalToolNames[toolType]; ok {
		return name
	}
	if toolType == "" {
		return placeholderTool
	}
	return toolType
}

// Accumulator builds one ConversationRecord from the lifecycle events of a
// single agent run. It is safe for concurrent use, though a single run
// normally delivers its events sequentially. After Finalize the accumulator
// is spent: further events are dropped with a warning.
type Accumulator struct {
	mu sync.Mutex

	namespace string
	agent     string
	sessionID string

	messages  []Message
	transfers []Transfer
	usage     TokenUsage

	// user-input capture state machine: not captured -> captured.
	// candidate holds the best text observed through any fallback source
	// and feeds the finalize-time safety net.
	userCaptured bool
	candidate    string

	externalUserID      string
	externalUserName    string
	externalUserChannel string

	finalized bool
	logger    *slog.Logger
}

// NewAccumulator opens an accumulator for one agent run. The session id is
// obtained by the caller from a session manager before the run starts.
func NewAccumulator(namespace, agent, sessionID string, logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	if agent == "" {
		agent = "unknown_agent"
	}
	return &Accumulator{
		namespace: namespace,
		agent:     agent,
		sessionID: sessionID,
		logger:    logger.With("component", "accumulator", "agent", agent),
	}
}

// SessionID returns the session id the run is stamped with.
func (a *Accumulator) SessionID() string {
	return a.sessionID
}

// CaptureUserInput appends the initial user message. Only the first
// non-empty call per run takes effect: frameworks offer several redundant
// capture paths and exactly one user message belongs at the start of the
// transcript.
func (a *Accumulator) CaptureUserInput(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spent("CaptureUserInput") {
		return
	}
	if a.candidate == "" {
		a.candidate = text
	}
	if a.userCaptured {
		return
	}
	a.userCaptured = true
	a.messages = append(a.messages, Message{
		Role:    RoleUser,
		Content: text,
		Sender:  "user",
	})
}

// ObserveUserInput records candidate user text without appending a message.
// Adapters use it for sources whose position in the transcript is not
// trustworthy; Finalize inserts the candidate at the front of the
// transcript if no user message was ever captured.
func (a *Accumulator) ObserveUserInput(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.candidate == "" {
		a.candidate = text
	}
}

// AppendAssistantMessage appends an assistant reply. When usage carries
// exact provider-reported counts they are added as-is; otherwise the output
// tokens are estimated from the text. Exact counts and estimates are never
// summed for the same event.
func (a *Accumulator) AppendAssistantMessage(text string, usage *TokenUsage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spent("AppendAssistantMessage") {
		return
	}
	a.messages = append(a.messages, Message{
		Role:    RoleAssistant,
		Content: text,
		Sender:  a.agent,
	})
	if usage != nil {
		a.usage.Input += usage.Input
		a.usage.Output += usage.Output
		a.usage.Process += usage.Process
		a.usage.Memory += usage.Memory
		return
	}
	a.usage.Output += EstimateTokens(text)
}

// AppendToolCall appends a tool invocation as a tool message. Arguments and
// result are normalized to plain data; process tokens are estimated from
// the serialized payload since tool traffic has no exact counts.
func (a *Accumulator) AppendToolCall(toolName string, arguments, result any, latency time.Duration) {
	if toolName == "" {
		toolName = placeholderTool
	}
	arguments = Normalize(arguments)
	result = Normalize(result)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spent("AppendToolCall") {
		return
	}

	content := stringify(result)
	if content == "" {
		content = "Calling tool: " + toolName
	}
	a.messages = append(a.messages, Message{
		Role:     RoleTool,
		Content:  content,
		Sender:   a.agent,
		ToolName: toolName,
		ToolCalls: []ToolCall{{
			Name:      toolName,
			Arguments: arguments,
			Result:    result,
			LatencyMS: latency.Milliseconds(),
		}},
	})
	a.usage.Process += EstimateValueTokens(arguments) + EstimateValueTokens(result)
}

// AppendInternalTool appends a provider-internal tool call (web search,
// file search, code interpreter) that never fired the regular tool hooks.
func (a *Accumulator) AppendInternalTool(toolType string, arguments, sources, result any) {
	name := InternalToolName(toolType)
	arguments = Normalize(arguments)
	sources = Normalize(sources)
	result = Normalize(result)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spent("AppendInternalTool") {
		return
	}

	call := ToolCall{
		Name:      name,
		Type:      toolType,
		Arguments: arguments,
		Result:    result,
	}
	if sources != nil {
		call.Arguments = map[string]any{
			"arguments": arguments,
			"sources":   sources,
		}
	}
	a.messages = append(a.messages, Message{
		Role:             RoleTool,
		Content:          "Internal tool: " + name,
		Sender:           a.agent,
		ToolName:         name,
		IsInternalTool:   true,
		InternalToolType: toolType,
		ToolCalls:        []ToolCall{call},
	})
	a.usage.Process += EstimateValueTokens(call.Arguments) + EstimateValueTokens(result)
}

// AppendHandoff records an agent-to-agent transfer. One Transfer and one
// tool message are appended atomically from the single event, never one
// without the other: the Transfer feeds analytics, the message keeps the
// handoff visible inline in the transcript.
func (a *Accumulator) AppendHandoff(fromAgent, toAgent, reason string) {
	if fromAgent == "" {
		fromAgent = "unknown_agent"
	}
	if toAgent == "" {
		toAgent = "unknown_agent"
	}
	timestamp := Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spent("AppendHandoff") {
		return
	}

	a.transfers = append(a.transfers, Transfer{
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Reason:    reason,
		Timestamp: timestamp,
	})

	args := map[string]any{
		"from_agent": fromAgent,
		"to_agent":   toAgent,
		"timestamp":  timestamp,
	}
	if reason != "" {
		args["reason"] = reason
	}
	a.messages = append(a.messages, Message{
		Role:     RoleTool,
		Content:  "Transferring conversation to " + toAgent,
		Sender:   fromAgent,
		ToolName: "transfer_to_agent",
		ToolCalls: []ToolCall{{
			Name:      "transfer_to_agent",
			Arguments: args,
		}},
	})
}

// EstimateInstructionTokens adds an estimate for the agent's system
// instructions to the process token count. Called once at run start when
// system token estimation is enabled.
func (a *Accumulator) EstimateInstructionTokens(instructions string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spent("EstimateInstructionTokens") {
		return
	}
	a.usage.Process += EstimateTokens(instructions)
}

// AddMemoryTokens adds exact context/memory token counts reported by the
// framework.
func (a *Accumulator) AddMemoryTokens(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spent("AddMemoryTokens") {
		return
	}
	a.usage.Memory += n
}

// SetExternalUser attaches end-user identification to the record.
func (a *Accumulator) SetExternalUser(id, name, channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.externalUserID = id
	a.externalUserName = name
	a.externalUserChannel = channel
}

// Finalize applies the user-message safety net and returns an immutable
// snapshot of the run. The accumulator must not be reused afterwards;
// subsequent events are dropped.
func (a *Accumulator) Finalize() *ConversationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		a.logger.Warn("finalize called twice on accumulator")
	}
	a.finalized = true

	messages := make([]Message, len(a.messages))
	copy(messages, a.messages)

	// Safety net: if no user message made it into the transcript but any
	// capture path observed candidate text, insert it at the front.
	if !hasRole(messages, RoleUser) && a.candidate != "" {
		messages = append([]Message{{
			Role:    RoleUser,
			Content: a.candidate,
			Sender:  "user",
		}}, messages...)
	}

	var transfers []Transfer
	if len(a.transfers) > 0 {
		transfers = make([]Transfer, len(a.transfers))
		copy(transfers, a.transfers)
	}

	return &ConversationRecord{
		Namespace:           a.namespace,
		Agent:               a.agent,
		SessionID:           a.sessionID,
		Messages:            messages,
		Transfers:           transfers,
		InputTokens:         a.usage.Input,
		OutputTokens:        a.usage.Output,
		ProcessTokens:       a.usage.Process,
		MemoryTokens:        a.usage.Memory,
		ExternalUserID:      a.externalUserID,
		ExternalUserName:    a.externalUserName,
		ExternalUserChannel: a.externalUserChannel,
		InsertedAt:          Now(),
	}
}

// MessageCount returns the number of messages accumulated so far.
func (a *Accumulator) MessageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

// TransferCount returns the number of transfers accumulated so far.
func (a *Accumulator) TransferCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.transfers)
}

// spent reports whether the accumulator was already finalized. Must be
// called with the mutex held.
func (a *Accumulator) spent(op string) bool {
	if a.finalized {
		a.logger.Warn("event after finalize dropped", "op", op)
		return true
	}
	return false
}

func hasRole(messages []Message, role string) bool {
	for _, m := range messages {
		if m.Role == role {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
