// ABOUTME: go-openai type conversions and one-shot request/response tracing.
// ABOUTME: Exact usage from the API response, tool-call argument decoding.

package openai

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/BeMonkAI/monkai-trace/record"
)

// UsageFromChatCompletion converts API-reported usage into exact token
// counts. Returns nil for an empty usage block so callers fall back to
// estimation.
func UsageFromChatCompletion(u openai.Usage) *record.TokenUsage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return nil
	}
	return &record.TokenUsage{
		Input:  u.PromptTokens,
		Output: u.CompletionTokens,
	}
}

// MessagesFromChatCompletion converts the response choices into record
// messages, tool calls included.
func MessagesFromChatCompletion(resp openai.ChatCompletionResponse) []record.Message {
	var messages []record.Message
	for _, choice := range resp.Choices {
		messages = append(messages, messageFromChat(choice.Message))
	}
	return messages
}

func messageFromChat(m openai.ChatCompletionMessage) record.Message {
	msg := record.Message{
		Role:    m.Role,
		Content: m.Content,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, record.ToolCall{
			Name:      tc.Function.Name,
			Type:      string(tc.Type),
			ID:        tc.ID,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}
	return msg
}

// decodeArguments parses the JSON argument string the API returns.
// Malformed JSON is kept as the raw string rather than dropped.
func decodeArguments(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// TraceChatCompletion records one chat completion round trip: the user
// message from the request, the assistant output with exact usage, and
// any tool calls the model requested.
func TraceChatCompletion(acc *record.Accumulator, req openai.ChatCompletionRequest, resp openai.ChatCompletionResponse) {
	if acc == nil {
		return
	}
	if text := lastUserMessage(req.Messages); text != "" {
		acc.CaptureUserInput(text)
	}
	for _, m := range req.Messages {
		if m.Role == openai.ChatMessageRoleSystem && m.Content != "" {
			acc.EstimateInstructionTokens(m.Content)
			break
		}
	}

	usage := UsageFromChatCompletion(resp.Usage)
	for i, choice := range resp.Choices {
		// Usage covers the whole response; attach it to the first choice.
		var u *record.TokenUsage
		if i == 0 {
			u = usage
		}
		acc.AppendAssistantMessage(choice.Message.Content, u)
		for _, tc := range choice.Message.ToolCalls {
			acc.AppendToolCall(tc.Function.Name, decodeArguments(tc.Function.Arguments), nil, 0)
		}
	}
}

func lastUserMessage(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
