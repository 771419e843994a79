// ABOUTME: Tests for the API client: auth header, retries, error taxonomy.
// ABOUTME: Uses httptest servers standing in for the collection API.

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeMonkAI/monkai-trace/record"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithRetryBackoff(time.Millisecond),
	}, opts...)
	c, err := New("test-token", opts...)
	require.NoError(t, err)
	return c
}

func insertedHandler(t *testing.T, wantPath string, count *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantPath, r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("tracer_token"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))

		var payload struct {
			Records []json.RawMessage `json:"records"`
			Logs    []json.RawMessage `json:"logs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		n := len(payload.Records) + len(payload.Logs)
		count.Add(int64(n))
		fmt.Fprintf(w, `{"inserted_count":%d}`, n)
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("   ")
	assert.Error(t, err)

	_, err = New("tok", WithTimeout(-time.Second))
	assert.Error(t, err)

	_, err = New("tok", WithChunkSize(0))
	assert.Error(t, err)

	c, err := New("tok")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.Equal(t, DefaultMaxRetries, c.maxRetries)
}

func TestClient_UploadRecord(t *testing.T) {
	var count atomic.Int64
	c := newTestClient(t, insertedHandler(t, "/records/upload", &count))

	err := c.UploadRecord(context.Background(), record.ConversationRecord{
		Namespace: "acme",
		Agent:     "support",
		SessionID: "acme-u1-20260901-100000",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count.Load())
}

func TestClient_UploadRecords_Chunked(t *testing.T) {
	var count atomic.Int64
	var requests atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		insertedHandler(t, "/records/upload", &count).ServeHTTP(w, r)
	})
	c := newTestClient(t, handler, WithChunkSize(4))

	records := make([]record.ConversationRecord, 10)
	summary := c.UploadRecords(context.Background(), records)

	assert.Equal(t, 10, summary.TotalItems)
	assert.Equal(t, 10, summary.TotalInserted)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, int64(3), requests.Load())
}

func TestClient_UploadLogs(t *testing.T) {
	var count atomic.Int64
	c := newTestClient(t, insertedHandler(t, "/logs/upload", &count))

	summary := c.UploadLogs(context.Background(), []record.LogEntry{
		{Namespace: "acme", Level: record.LevelInfo, Message: "hello"},
		{Namespace: "acme", Level: record.LevelError, Message: "boom"},
	})
	assert.Equal(t, 2, summary.TotalInserted)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int64
	var idemKeys []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idemKeys = append(idemKeys, r.Header.Get("X-Idempotency-Key"))
		if attempts.Add(1) < 3 {
			http.Error(w, `{"error":"temporarily unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"inserted_count":1}`)
	})
	c := newTestClient(t, handler)

	err := c.UploadLog(context.Background(), record.LogEntry{Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), attempts.Load())

	// The same idempotency key is reused across retries.
	require.Len(t, idemKeys, 3)
	assert.Equal(t, idemKeys[0], idemKeys[1])
	assert.Equal(t, idemKeys[0], idemKeys[2])
}

func TestClient_NoRetryOnValidationError(t *testing.T) {
	var attempts atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, `{"error":"missing namespace"}`, http.StatusBadRequest)
	})
	c := newTestClient(t, handler)

	err := c.UploadLog(context.Background(), record.LogEntry{Message: "m"})
	require.Error(t, err)
	assert.Equal(t, int64(1), attempts.Load())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, http.StatusBadRequest, verr.StatusCode)
	assert.Contains(t, verr.Message, "missing namespace")
}

func TestClient_AuthError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
	})
	c := newTestClient(t, handler)

	err := c.UploadRecord(context.Background(), record.ConversationRecord{})
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, http.StatusUnauthorized, aerr.StatusCode)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New("tok",
		WithBaseURL(url),
		WithMaxRetries(1),
		WithRetryBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	err = c.UploadLog(context.Background(), record.LogEntry{Message: "m"})
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
}

func TestClient_ExhaustedRetriesReturnsLastError(t *testing.T) {
	var attempts atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	})
	c := newTestClient(t, handler, WithMaxRetries(2))

	err := c.UploadLog(context.Background(), record.LogEntry{Message: "m"})
	require.Error(t, err)
	assert.Equal(t, int64(3), attempts.Load())

	var serr *ServerError
	require.ErrorAs(t, err, &serr)
}

func TestClient_FailedChunkDoesNotAbortBatch(t *testing.T) {
	var requests atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, `{"error":"bad chunk"}`, http.StatusBadRequest)
			return
		}
		var payload struct {
			Records []json.RawMessage `json:"records"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		fmt.Fprintf(w, `{"inserted_count":%d}`, len(payload.Records))
	})
	c := newTestClient(t, handler, WithChunkSize(2))

	summary := c.UploadRecords(context.Background(), make([]record.ConversationRecord, 6))

	assert.Equal(t, 6, summary.TotalItems)
	assert.Equal(t, 4, summary.TotalInserted)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 0, summary.Failures[0].ChunkIndex)
	assert.Equal(t, 2, summary.FailedItems())
}

func TestClient_QueryRecords(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/record_query", r.URL.Path)
		var q RecordQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "acme", q.Namespace)
		assert.Equal(t, "support", q.Agent)
		assert.Equal(t, 5, q.Limit)

		fmt.Fprint(w, `{"records":[{"namespace":"acme","agent":"support","session_id":"s1","input_tokens":12,"output_tokens":30,"process_tokens":0,"memory_tokens":0}]}`)
	})
	c := newTestClient(t, handler)

	records, err := c.QueryRecords(context.Background(), RecordQuery{
		Namespace: "acme",
		Agent:     "support",
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].SessionID)
	assert.Equal(t, 42, records[0].TotalTokens())
}

func TestClient_QueryLogs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logs/query", r.URL.Path)
		fmt.Fprint(w, `{"logs":[{"namespace":"acme","level":"error","message":"boom"}]}`)
	})
	c := newTestClient(t, handler)

	logs, err := c.QueryLogs(context.Background(), LogQuery{Namespace: "acme", Level: record.LevelError})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "boom", logs[0].Message)
}

func TestClient_GetOrCreateSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/get-or-create", r.URL.Path)
		var req struct {
			Namespace         string `json:"namespace"`
			UserID            string `json:"user_id"`
			InactivityTimeout int    `json:"inactivity_timeout_seconds"`
			ForceNew          bool   `json:"force_new"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme", req.Namespace)
		assert.Equal(t, "u1", req.UserID)
		assert.Equal(t, 120, req.InactivityTimeout)

		fmt.Fprint(w, `{"session_id":"acme-u1-20260901-100000","reused":true}`)
	})
	c := newTestClient(t, handler)

	id, reused, err := c.GetOrCreateSession(context.Background(), "acme", "u1", 120*time.Second, false)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, "acme-u1-20260901-100000", id)
}

func TestClient_GetOrCreateSession_EmptyID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	c := newTestClient(t, handler)

	_, _, err := c.GetOrCreateSession(context.Background(), "acme", "u1", time.Minute, false)
	assert.Error(t, err)
}

func TestClient_TestConnection(t *testing.T) {
	var count atomic.Int64
	c := newTestClient(t, insertedHandler(t, "/logs/upload", &count))
	assert.True(t, c.TestConnection(context.Background(), "acme"))

	bad := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusUnauthorized)
	}))
	assert.False(t, bad.TestConnection(context.Background(), "acme"))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&ServerError{StatusCode: 500}))
	assert.True(t, retryable(&NetworkError{Err: errors.New("refused")}))
	assert.False(t, retryable(&ValidationError{StatusCode: 400}))
	assert.False(t, retryable(&AuthError{StatusCode: 401}))
}
