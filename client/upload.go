// ABOUTME: Record and log upload endpoints with chunked batch delivery.
// ABOUTME: Exposes buffer.Uploader adapters for the batch buffer.

package client

import (
	"context"
	"fmt"

	"github.com/BeMonkAI/monkai-trace/buffer"
	"github.com/BeMonkAI/monkai-trace/record"
)

type recordsPayload struct {
	Records []record.ConversationRecord `json:"records"`
}

type logsPayload struct {
	Logs []record.LogEntry `json:"logs"`
}

type insertedResponse struct {
	InsertedCount int `json:"inserted_count"`
}

// UploadRecord uploads a single conversation record.
func (c *Client) UploadRecord(ctx context.Context, rec record.ConversationRecord) error {
	_, err := c.uploadRecordChunk(ctx, []record.ConversationRecord{rec})
	return err
}

// UploadRecords uploads records in chunks of the configured chunk size.
// Chunks fail independently; the summary accounts for every record.
func (c *Client) UploadRecords(ctx context.Context, records []record.ConversationRecord) buffer.UploadSummary {
	return uploadChunked(ctx, records, c.chunkSize, c.uploadRecordChunk)
}

// UploadLog uploads a single log entry.
func (c *Client) UploadLog(ctx context.Context, entry record.LogEntry) error {
	_, err := c.uploadLogChunk(ctx, []record.LogEntry{entry})
	return err
}

// UploadLogs uploads log entries in chunks of the configured chunk size.
func (c *Client) UploadLogs(ctx context.Context, entries []record.LogEntry) buffer.UploadSummary {
	return uploadChunked(ctx, entries, c.chunkSize, c.uploadLogChunk)
}

// RecordUploader adapts the client for a record batch buffer.
func (c *Client) RecordUploader() buffer.Uploader[record.ConversationRecord] {
	return buffer.UploaderFunc[record.ConversationRecord](c.uploadRecordChunk)
}

// LogUploader adapts the client for a log batch buffer.
func (c *Client) LogUploader() buffer.Uploader[record.LogEntry] {
	return buffer.UploaderFunc[record.LogEntry](c.uploadLogChunk)
}

func (c *Client) uploadRecordChunk(ctx context.Context, chunk []record.ConversationRecord) (int, error) {
	var resp insertedResponse
	if err := c.post(ctx, "/records/upload", recordsPayload{Records: chunk}, &resp); err != nil {
		return 0, fmt.Errorf("uploading %d records: %w", len(chunk), err)
	}
	return resp.InsertedCount, nil
}

func (c *Client) uploadLogChunk(ctx context.Context, chunk []record.LogEntry) (int, error) {
	var resp insertedResponse
	if err := c.post(ctx, "/logs/upload", logsPayload{Logs: chunk}, &resp); err != nil {
		return 0, fmt.Errorf("uploading %d logs: %w", len(chunk), err)
	}
	return resp.InsertedCount, nil
}

// uploadChunked partitions items and delivers each chunk once, collecting
// per-chunk outcomes into a summary.
func uploadChunked[T any](ctx context.Context, items []T, chunkSize int, upload func(context.Context, []T) (int, error)) buffer.UploadSummary {
	summary := buffer.UploadSummary{TotalItems: len(items)}
	chunkIndex := 0
	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))
		chunk := items[start:end]
		inserted, err := upload(ctx, chunk)
		if err != nil {
			summary.Failures = append(summary.Failures, buffer.ChunkFailure{
				ChunkIndex: chunkIndex,
				Items:      len(chunk),
				Err:        err,
			})
		} else {
			summary.TotalInserted += inserted
		}
		chunkIndex++
	}
	return summary
}

// TestConnection verifies the token and endpoint by uploading a minimal
// log entry. Returns true when the API accepted it.
func (c *Client) TestConnection(ctx context.Context, namespace string) bool {
	entry := record.LogEntry{
		Namespace: namespace,
		Level:     record.LevelInfo,
		Message:   "connection test",
		Timestamp: record.Now(),
	}
	if err := c.UploadLog(ctx, entry); err != nil {
		c.logger.Warn("connection test failed", "error", err)
		return false
	}
	return true
}
