// ABOUTME: Export endpoints producing JSON or CSV dumps of stored data.
// ABOUTME: Uses an extended timeout; optionally writes straight to a file.

package client

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Export formats accepted by the API.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

type exportRequest struct {
	Format string `json:"format"`
	RecordQuery
}

type logExportRequest struct {
	Format string `json:"format"`
	LogQuery
}

// ExportRecords exports records matching q in the given format. When
// outputPath is non-empty the payload is also written there. The request
// runs with an extended timeout since the server assembles the whole
// export before responding.
func (c *Client) ExportRecords(ctx context.Context, q RecordQuery, format, outputPath string) ([]byte, error) {
	if err := validateFormat(format); err != nil {
		return nil, err
	}
	raw, err := c.postWithTimeout(ctx, "/records/export", exportRequest{Format: format, RecordQuery: q}, c.exportTimeout())
	if err != nil {
		return nil, fmt.Errorf("exporting records: %w", err)
	}
	if err := writeExport(outputPath, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ExportLogs exports log entries matching q in the given format.
func (c *Client) ExportLogs(ctx context.Context, q LogQuery, format, outputPath string) ([]byte, error) {
	if err := validateFormat(format); err != nil {
		return nil, err
	}
	raw, err := c.postWithTimeout(ctx, "/logs/export", logExportRequest{Format: format, LogQuery: q}, c.exportTimeout())
	if err != nil {
		return nil, fmt.Errorf("exporting logs: %w", err)
	}
	if err := writeExport(outputPath, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// exportTimeout stretches the configured timeout to at least the export
// floor.
func (c *Client) exportTimeout() time.Duration {
	if c.timeout > ExportTimeout {
		return c.timeout
	}
	return ExportTimeout
}

func validateFormat(format string) error {
	if format != FormatJSON && format != FormatCSV {
		return fmt.Errorf("unsupported export format %q (want %q or %q)", format, FormatJSON, FormatCSV)
	}
	return nil
}

func writeExport(path string, data []byte) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing export to %s: %w", path, err)
	}
	return nil
}
