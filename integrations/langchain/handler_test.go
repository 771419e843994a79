// ABOUTME: Tests for the langchaingo callback handler.
// ABOUTME: Simulates chain/LLM/tool callback sequences and checks records.

package langchain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeMonkAI/monkai-trace/record"
)

type captureUploader struct {
	mu      sync.Mutex
	records []record.ConversationRecord
}

func (u *captureUploader) Upload(_ context.Context, chunk []record.ConversationRecord) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records = append(u.records, chunk...)
	return len(chunk), nil
}

func (u *captureUploader) all() []record.ConversationRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]record.ConversationRecord(nil), u.records...)
}

func newTestHandler(t *testing.T) (*Handler, *captureUploader) {
	t.Helper()
	up := &captureUploader{}
	h, err := NewHandler(up, Options{Namespace: "acme", Agent: "qa-chain", UserID: "u1"})
	require.NoError(t, err)
	return h, up
}

func TestNewHandler_Validation(t *testing.T) {
	up := &captureUploader{}

	_, err := NewHandler(up, Options{Agent: "a"})
	assert.Error(t, err)

	_, err = NewHandler(up, Options{Namespace: "n"})
	assert.Error(t, err)

	_, err = NewHandler(nil, Options{Namespace: "n", Agent: "a"})
	assert.Error(t, err)
}

func TestHandler_ChainRun(t *testing.T) {
	h, up := newTestHandler(t)
	ctx := context.Background()

	h.HandleChainStart(ctx, map[string]any{"input": "what is a goroutine?"})
	h.HandleLLMGenerateContentEnd(ctx, &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: "A goroutine is a lightweight thread.",
				GenerationInfo: map[string]any{
					"PromptTokens":     25,
					"CompletionTokens": 9,
				},
			},
		},
	})
	h.HandleChainEnd(ctx, map[string]any{"output": "A goroutine is a lightweight thread."})
	h.Flush(ctx)

	records := up.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "acme", rec.Namespace)
	assert.Equal(t, "qa-chain", rec.Agent)
	assert.Contains(t, rec.SessionID, "acme-u1-")

	require.Len(t, rec.Messages, 2)
	assert.Equal(t, record.RoleUser, rec.Messages[0].Role)
	assert.Equal(t, "what is a goroutine?", rec.Messages[0].Content)
	assert.Equal(t, record.RoleAssistant, rec.Messages[1].Role)

	assert.Equal(t, 25, rec.InputTokens)
	assert.Equal(t, 9, rec.OutputTokens)
}

func TestHandler_NestedChainsShareRun(t *testing.T) {
	h, up := newTestHandler(t)
	ctx := context.Background()

	h.HandleChainStart(ctx, map[string]any{"input": "outer"})
	h.HandleChainStart(ctx, map[string]any{"question": "inner"})
	h.HandleChainEnd(ctx, map[string]any{"text": "inner result"})
	assert.Empty(t, up.all())
	assert.Equal(t, 0, h.Pending())

	h.HandleChainEnd(ctx, map[string]any{"output": "outer result"})
	h.Flush(ctx)

	records := up.all()
	require.Len(t, records, 1)
	// The outer input won; the inner never overwrote it.
	assert.Equal(t, "outer", records[0].Messages[0].Content)
}

func TestHandler_EstimatesWhenNoUsageReported(t *testing.T) {
	h, up := newTestHandler(t)
	ctx := context.Background()

	h.HandleChainStart(ctx, map[string]any{"input": "hi"})
	h.HandleLLMGenerateContentEnd(ctx, &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "hello there, how can I help?"}},
	})
	h.HandleChainEnd(ctx, nil)
	h.Flush(ctx)

	records := up.all()
	require.Len(t, records, 1)
	assert.Equal(t, record.EstimateTokens("hello there, how can I help?"), records[0].OutputTokens)
}

func TestHandler_ChainOutputFallback(t *testing.T) {
	h, up := newTestHandler(t)
	ctx := context.Background()

	// No LLM content callback fired; the chain output is the answer.
	h.HandleChainStart(ctx, map[string]any{"input": "q"})
	h.HandleChainEnd(ctx, map[string]any{"output": "direct answer"})
	h.Flush(ctx)

	records := up.all()
	require.Len(t, records, 1)
	require.Len(t, records[0].Messages, 2)
	assert.Equal(t, "direct answer", records[0].Messages[1].Content)
}

func TestHandler_AgentActionNamesTool(t *testing.T) {
	h, up := newTestHandler(t)
	current := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return current }
	ctx := context.Background()

	h.HandleChainStart(ctx, map[string]any{"input": "search something"})
	h.HandleAgentAction(ctx, schema.AgentAction{Tool: "web_search", ToolInput: "something"})
	h.HandleToolStart(ctx, "something")
	current = current.Add(80 * time.Millisecond)
	h.HandleToolEnd(ctx, "search results")
	h.HandleChainEnd(ctx, map[string]any{"output": "found"})
	h.Flush(ctx)

	records := up.all()
	require.Len(t, records, 1)
	var toolMsg *record.Message
	for i := range records[0].Messages {
		if records[0].Messages[i].Role == record.RoleTool {
			toolMsg = &records[0].Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "web_search", toolMsg.ToolName)
	require.Len(t, toolMsg.ToolCalls, 1)
	assert.Equal(t, int64(80), toolMsg.ToolCalls[0].LatencyMS)
}

func TestHandler_ToolErrorRecorded(t *testing.T) {
	h, up := newTestHandler(t)
	ctx := context.Background()

	h.HandleChainStart(ctx, map[string]any{"input": "q"})
	h.HandleToolStart(ctx, "payload")
	h.HandleToolError(ctx, errors.New("tool exploded"))
	h.HandleChainEnd(ctx, map[string]any{"output": "degraded answer"})
	h.Flush(ctx)

	records := up.all()
	require.Len(t, records, 1)
	var toolMsg *record.Message
	for i := range records[0].Messages {
		if records[0].Messages[i].Role == record.RoleTool {
			toolMsg = &records[0].Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	require.Len(t, toolMsg.ToolCalls, 1)
	assert.Contains(t, toolMsg.ToolCalls[0].Result, "tool exploded")
}

func TestHandler_ChainErrorStillProducesRecord(t *testing.T) {
	h, up := newTestHandler(t)
	ctx := context.Background()

	h.HandleChainStart(ctx, map[string]any{"input": "q"})
	h.HandleChainError(ctx, errors.New("boom"))
	h.Flush(ctx)

	records := up.all()
	require.Len(t, records, 1)
	assert.Equal(t, "q", records[0].Messages[0].Content)
}

func TestHandler_HumanMessageCaptured(t *testing.T) {
	h, up := newTestHandler(t)
	ctx := context.Background()

	h.HandleChainStart(ctx, map[string]any{})
	h.HandleLLMGenerateContentStart(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextContent{Text: "be brief"}}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: "from messages"}}},
	})
	h.HandleChainEnd(ctx, map[string]any{"output": "ok"})
	h.Flush(ctx)

	records := up.all()
	require.Len(t, records, 1)
	assert.Equal(t, "from messages", records[0].Messages[0].Content)
	assert.Equal(t, record.EstimateTokens("be brief"), records[0].ProcessTokens)
}
