// ABOUTME: Data model for conversation records, messages, transfers and logs.
// ABOUTME: JSON field names are the stable wire contract of the collection API.

package record

import (
	"encoding/json"
	"time"
)

// Message roles recognized by the collection API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Log levels recognized by the collection API.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ToolCall describes a single tool invocation attached to a tool message.
// Arguments and Result hold plain data only (maps, slices, primitives);
// the accumulator normalizes anything else before storing it here.
type ToolCall struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	ID        string `json:"id,omitempty"`
	Status    string `json:"status,omitempty"`
	Arguments any    `json:"arguments,omitempty"`
	Result    any    `json:"result,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
}

// Message is one entry in a conversation transcript. Ordering within a
// record is significant: it is the conversation timeline.
type Message struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	Sender           string     `json:"sender,omitempty"`
	ToolName         string     `json:"tool_name,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	IsInternalTool   bool       `json:"is_internal_tool,omitempty"`
	InternalToolType string     `json:"internal_tool_type,omitempty"`
}

// Transfer records an agent-to-agent handoff within a multi-agent run.
// Every handoff produces exactly one Transfer and one corresponding
// tool-type Message; the accumulator creates both atomically.
type Transfer struct {
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ConversationRecord is one finalized agent run: the transcript plus token
// accounting. The token fields are always serialized, even when zero, so
// downstream aggregation never has to treat absence as zero. total_tokens
// is derived at serialization time and never stored.
type ConversationRecord struct {
	Namespace string     `json:"namespace"`
	Agent     string     `json:"agent"`
	SessionID string     `json:"session_id,omitempty"`
	Messages  []Message  `json:"messages"`
	Transfers []Transfer `json:"transfers,omitempty"`

	InputTokens   int `json:"input_tokens"`
	OutputTokens  int `json:"output_tokens"`
	ProcessTokens int `json:"process_tokens"`
	MemoryTokens  int `json:"memory_tokens"`

	ExternalUserID      string `json:"external_user_id,omitempty"`
	ExternalUserName    string `json:"external_user_name,omitempty"`
	ExternalUserChannel string `json:"external_user_channel,omitempty"`

	InsertedAt string `json:"inserted_at,omitempty"`
}

// TotalTokens returns the sum of all token fields. The total is always
// derived; it has no authoritative storage of its own.
func (r *ConversationRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens + r.ProcessTokens + r.MemoryTokens
}

// MarshalJSON emits the record with the derived total_tokens field included.
func (r ConversationRecord) MarshalJSON() ([]byte, error) {
	type alias ConversationRecord
	return json.Marshal(struct {
		alias
		TotalTokens int `json:"total_tokens"`
	}{
		alias:       alias(r),
		TotalTokens: r.TotalTokens(),
	})
}

// LogEntry is a single application log line destined for the collection
// API. Log entries flow through their own batch buffer, independent from
// conversation records.
type LogEntry struct {
	Namespace    string         `json:"namespace"`
	Level        string         `json:"level"`
	Message      string         `json:"message"`
	Agent        string         `json:"agent,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	CustomObject map[string]any `json:"custom_object,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

// TokenUsage is an exact token breakdown reported by an instrumented
// framework. A nil *TokenUsage means "no exact counts available" and the
// accumulator falls back to estimation.
type TokenUsage struct {
	Input   int
	Output  int
	Process int
	Memory  int
}

// Total returns the sum of all fields.
func (u TokenUsage) Total() int {
	return u.Input + u.Output + u.Process + u.Memory
}

// Now returns the current UTC time formatted the way the collection API
// expects timestamps.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
