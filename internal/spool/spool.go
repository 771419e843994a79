// ABOUTME: SQLite spool for upload chunks that failed delivery.
// ABOUTME: Failed chunks are saved as JSON payloads and replayed later.

// Package spool persists upload chunks the API refused or never
// received, so telemetry survives restarts and can be resent.
package spool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/BeMonkAI/monkai-trace/record"
)

// Chunk kinds held in the spool.
const (
	KindRecords = "records"
	KindLogs    = "logs"
)

// Entry is one spooled chunk.
type Entry struct {
	ID        string
	Kind      string
	Payload   []byte
	Items     int
	Reason    string
	CreatedAt time.Time
}

// Store is a durable spool backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) a spool database at path. Parent
// directories are created if needed.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "spool")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening spool database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating spool schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			payload    BLOB NOT NULL,
			items      INTEGER NOT NULL,
			reason     TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_kind_created
			ON chunks(kind, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save spools one chunk and returns its id.
func (s *Store) Save(ctx context.Context, kind string, payload []byte, items int, reason string) (string, error) {
	if kind != KindRecords && kind != KindLogs {
		return "", fmt.Errorf("unknown spool kind %q", kind)
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, kind, payload, items, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, kind, payload, items, reason, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("saving spooled chunk: %w", err)
	}
	s.logger.Info("chunk spooled", "id", id, "kind", kind, "items", items)
	return id, nil
}

// SaveRecords spools a failed record chunk.
func (s *Store) SaveRecords(ctx context.Context, records []record.ConversationRecord, cause error) (string, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encoding record chunk: %w", err)
	}
	return s.Save(ctx, KindRecords, payload, len(records), reasonString(cause))
}

// SaveLogs spools a failed log chunk.
func (s *Store) SaveLogs(ctx context.Context, logs []record.LogEntry, cause error) (string, error) {
	payload, err := json.Marshal(logs)
	if err != nil {
		return "", fmt.Errorf("encoding log chunk: %w", err)
	}
	return s.Save(ctx, KindLogs, payload, len(logs), reasonString(cause))
}

// List returns spooled chunks, oldest first. An empty kind lists all.
func (s *Store) List(ctx context.Context, kind string) ([]Entry, error) {
	query := `SELECT id, kind, payload, items, reason, created_at FROM chunks`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing spooled chunks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Payload, &e.Items, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning spooled chunk: %w", err)
		}
		e.Reason = reason.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing spooled chunks: %w", err)
	}
	return entries, nil
}

// Delete removes a chunk after a successful resend.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting spooled chunk %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("spooled chunk %s not found", id)
	}
	return nil
}

// DecodeRecords unpacks a records entry.
func DecodeRecords(e Entry) ([]record.ConversationRecord, error) {
	if e.Kind != KindRecords {
		return nil, fmt.Errorf("entry %s is %q, not %q", e.ID, e.Kind, KindRecords)
	}
	var records []record.ConversationRecord
	if err := json.Unmarshal(e.Payload, &records); err != nil {
		return nil, fmt.Errorf("decoding record chunk %s: %w", e.ID, err)
	}
	return records, nil
}

// DecodeLogs unpacks a logs entry.
func DecodeLogs(e Entry) ([]record.LogEntry, error) {
	if e.Kind != KindLogs {
		return nil, fmt.Errorf("entry %s is %q, not %q", e.ID, e.Kind, KindLogs)
	}
	var logs []record.LogEntry
	if err := json.Unmarshal(e.Payload, &logs); err != nil {
		return nil, fmt.Errorf("decoding log chunk %s: %w", e.ID, err)
	}
	return logs, nil
}

// RecordFailureHandler adapts the spool to the record buffer's failure
// callback.
func (s *Store) RecordFailureHandler() func(items []record.ConversationRecord, err error) {
	return func(items []record.ConversationRecord, cause error) {
		if _, err := s.SaveRecords(context.Background(), items, cause); err != nil {
			s.logger.Error("spooling failed record chunk", "error", err)
		}
	}
}

// LogFailureHandler adapts the spool to the log buffer's failure
// callback.
func (s *Store) LogFailureHandler() func(items []record.LogEntry, err error) {
	return func(items []record.LogEntry, cause error) {
		if _, err := s.SaveLogs(context.Background(), items, cause); err != nil {
			s.logger.Error("spooling failed log chunk", "error", err)
		}
	}
}

func reasonString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
