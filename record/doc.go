// ABOUTME: Package record defines the conversation record data model and the
// ABOUTME: accumulator that builds records from agent lifecycle events.

// Package record contains the core data model of the SDK: conversation
// records, messages, transfers, log entries, and token accounting.
//
// # Records
//
// A ConversationRecord captures one finished agent run: the ordered message
// transcript, any agent-to-agent transfers, and a token breakdown. Records
// are built incrementally by an Accumulator as lifecycle events arrive from
// a framework adapter, then finalized and handed to a batch buffer.
//
// # Token accounting
//
// Token counts come from the instrumented framework when available. When
// they are not, EstimateTokens provides a deterministic character-based
// approximation (4 characters per token). Exact counts always take
// precedence and are never mixed with estimates for the same event.
//
// # Fail-soft ingestion
//
// Every Accumulator operation degrades instead of failing: missing tool
// names become placeholders, unserializable payloads become strings.
// Telemetry must never break the agent it observes.
package record
