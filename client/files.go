// ABOUTME: JSON file loaders and file-to-API upload helpers.
// ABOUTME: Accepts {"records":[...]} and {"logs":[...]} document shapes.

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/BeMonkAI/monkai-trace/buffer"
	"github.com/BeMonkAI/monkai-trace/record"
)

// LoadRecordsFromJSON reads a {"records":[...]} document. A bare JSON
// array of records is accepted too.
func LoadRecordsFromJSON(path string) ([]record.ConversationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc recordsPayload
	if err := json.Unmarshal(data, &doc); err == nil && doc.Records != nil {
		return doc.Records, nil
	}
	var records []record.ConversationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: expected {\"records\":[...]} or a record array: %w", path, err)
	}
	return records, nil
}

// LoadLogsFromJSON reads a {"logs":[...]} document or a bare array.
func LoadLogsFromJSON(path string) ([]record.LogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc logsPayload
	if err := json.Unmarshal(data, &doc); err == nil && doc.Logs != nil {
		return doc.Logs, nil
	}
	var logs []record.LogEntry
	if err := json.Unmarshal(data, &logs); err != nil {
		return nil, fmt.Errorf("parsing %s: expected {\"logs\":[...]} or a log array: %w", path, err)
	}
	return logs, nil
}

// UploadRecordsFromJSON loads records from path and uploads them. When
// namespace is non-empty it backfills records that carry none.
func (c *Client) UploadRecordsFromJSON(ctx context.Context, path, namespace string) (buffer.UploadSummary, error) {
	records, err := LoadRecordsFromJSON(path)
	if err != nil {
		return buffer.UploadSummary{}, err
	}
	if namespace != "" {
		for i := range records {
			if records[i].Namespace == "" {
				records[i].Namespace = namespace
			}
		}
	}
	return c.UploadRecords(ctx, records), nil
}

// UploadLogsFromJSON loads log entries from path and uploads them, with
// the same namespace backfill as UploadRecordsFromJSON.
func (c *Client) UploadLogsFromJSON(ctx context.Context, path, namespace string) (buffer.UploadSummary, error) {
	logs, err := LoadLogsFromJSON(path)
	if err != nil {
		return buffer.UploadSummary{}, err
	}
	if namespace != "" {
		for i := range logs {
			if logs[i].Namespace == "" {
				logs[i].Namespace = namespace
			}
		}
	}
	return c.UploadLogs(ctx, logs), nil
}
