// ABOUTME: Query endpoints for stored records and logs.
// ABOUTME: Filter structs map directly onto the API's JSON query shape.

package client

import (
	"context"
	"fmt"

	"github.com/BeMonkAI/monkai-trace/record"
)

// RecordQuery filters a record query. Zero-value fields are omitted from
// the request. Dates are ISO 8601 strings.
type RecordQuery struct {
	Namespace string `json:"namespace,omitempty"`
	Agent     string `json:"agent,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// LogQuery filters a log query.
type LogQuery struct {
	Namespace  string `json:"namespace,omitempty"`
	Agent      string `json:"agent,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Level      string `json:"level,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// QueryRecords fetches stored conversation records matching the filters.
func (c *Client) QueryRecords(ctx context.Context, q RecordQuery) ([]record.ConversationRecord, error) {
	var resp struct {
		Records []record.ConversationRecord `json:"records"`
	}
	if err := c.post(ctx, "/record_query", q, &resp); err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return resp.Records, nil
}

// QueryLogs fetches stored log entries matching the filters.
func (c *Client) QueryLogs(ctx context.Context, q LogQuery) ([]record.LogEntry, error) {
	var resp struct {
		Logs []record.LogEntry `json:"logs"`
	}
	if err := c.post(ctx, "/logs/query", q, &resp); err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	return resp.Logs, nil
}
