// ABOUTME: Subcommand implementations for the monkai-trace CLI
// ABOUTME: upload, query, export, resend, and session commands

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/BeMonkAI/monkai-trace/buffer"
	"github.com/BeMonkAI/monkai-trace/client"
	"github.com/BeMonkAI/monkai-trace/internal/config"
	"github.com/BeMonkAI/monkai-trace/internal/spool"
	"github.com/BeMonkAI/monkai-trace/session"
)

const defaultSpoolPath = "monkai-spool.db"

func runUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "JSON file with records or logs")
	kind := fs.String("kind", "records", "What to upload: records or logs")
	namespace := fs.String("namespace", "", "Namespace backfill for entries without one")
	spoolFailed := fs.Bool("spool", false, "Spool failed chunks for later resend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	c, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	ns := *namespace
	if ns == "" {
		ns = cfg.Namespace
	}

	var summary buffer.UploadSummary
	switch *kind {
	case "records":
		summary, err = c.UploadRecordsFromJSON(ctx, *file, ns)
	case "logs":
		summary, err = c.UploadLogsFromJSON(ctx, *file, ns)
	default:
		return fmt.Errorf("unknown kind %q (want records or logs)", *kind)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded %d/%d items\n", summary.TotalInserted, summary.TotalItems)
	if len(summary.Failures) == 0 {
		return nil
	}

	for _, f := range summary.Failures {
		logger.Error("chunk failed", "chunk", f.ChunkIndex, "items", f.Items, "error", f.Err)
	}
	if *spoolFailed {
		if err := spoolFailures(ctx, cfg, *kind, ns, *file, summary); err != nil {
			return err
		}
	}
	return fmt.Errorf("%d items failed to upload", summary.FailedItems())
}

// spoolFailures re-reads the input file and saves the chunks the summary
// reports as failed. Chunk boundaries match the client's chunk size.
func spoolFailures(ctx context.Context, cfg *config.Config, kind, namespace, file string, summary buffer.UploadSummary) error {
	store, err := openSpool(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	chunkSize := cfg.API.ChunkSize
	if chunkSize <= 0 {
		chunkSize = client.DefaultChunkSize
	}
	failed := make(map[int]error, len(summary.Failures))
	for _, f := range summary.Failures {
		failed[f.ChunkIndex] = f.Err
	}

	switch kind {
	case "records":
		records, err := client.LoadRecordsFromJSON(file)
		if err != nil {
			return err
		}
		for i := range records {
			if records[i].Namespace == "" {
				records[i].Namespace = namespace
			}
		}
		for start, idx := 0, 0; start < len(records); start, idx = start+chunkSize, idx+1 {
			cause, ok := failed[idx]
			if !ok {
				continue
			}
			end := min(start+chunkSize, len(records))
			if _, err := store.SaveRecords(ctx, records[start:end], cause); err != nil {
				return err
			}
		}
	case "logs":
		logs, err := client.LoadLogsFromJSON(file)
		if err != nil {
			return err
		}
		for i := range logs {
			if logs[i].Namespace == "" {
				logs[i].Namespace = namespace
			}
		}
		for start, idx := 0, 0; start < len(logs); start, idx = start+chunkSize, idx+1 {
			cause, ok := failed[idx]
			if !ok {
				continue
			}
			end := min(start+chunkSize, len(logs))
			if _, err := store.SaveLogs(ctx, logs[start:end], cause); err != nil {
				return err
			}
		}
	}
	return nil
}

func runQuery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	kind := fs.String("kind", "records", "What to query: records or logs")
	namespace := fs.String("namespace", "", "Namespace filter")
	agent := fs.String("agent", "", "Agent filter")
	sessionID := fs.String("session", "", "Session id filter")
	level := fs.String("level", "", "Log level filter (logs only)")
	resourceID := fs.String("resource", "", "Resource id filter (logs only)")
	startDate := fs.String("start", "", "Start date (ISO 8601)")
	endDate := fs.String("end", "", "End date (ISO 8601)")
	limit := fs.Int("limit", 50, "Maximum results")
	offset := fs.Int("offset", 0, "Result offset")
	asJSON := fs.Bool("json", false, "Print raw JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	c, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	ns := *namespace
	if ns == "" {
		ns = cfg.Namespace
	}

	switch *kind {
	case "records":
		records, err := c.QueryRecords(ctx, client.RecordQuery{
			Namespace: ns,
			Agent:     *agent,
			SessionID: *sessionID,
			StartDate: *startDate,
			EndDate:   *endDate,
			Limit:     *limit,
			Offset:    *offset,
		})
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(records)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tAGENT\tMESSAGES\tTOKENS\tINSERTED AT")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				r.SessionID, r.Agent, len(r.Messages), r.TotalTokens(), r.InsertedAt)
		}
		return w.Flush()
	case "logs":
		logs, err := c.QueryLogs(ctx, client.LogQuery{
			Namespace:  ns,
			Agent:      *agent,
			SessionID:  *sessionID,
			Level:      *level,
			ResourceID: *resourceID,
			StartDate:  *startDate,
			EndDate:    *endDate,
			Limit:      *limit,
			Offset:     *offset,
		})
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(logs)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tLEVEL\tAGENT\tMESSAGE")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Timestamp, l.Level, l.Agent, l.Message)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown kind %q (want records or logs)", *kind)
	}
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	kind := fs.String("kind", "records", "What to export: records or logs")
	format := fs.String("format", "json", "Export format: json or csv")
	output := fs.String("output", "", "Output file (default stdout)")
	namespace := fs.String("namespace", "", "Namespace filter")
	agent := fs.String("agent", "", "Agent filter")
	startDate := fs.String("start", "", "Start date (ISO 8601)")
	endDate := fs.String("end", "", "End date (ISO 8601)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	c, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	ns := *namespace
	if ns == "" {
		ns = cfg.Namespace
	}

	var data []byte
	switch *kind {
	case "records":
		data, err = c.ExportRecords(ctx, client.RecordQuery{
			Namespace: ns,
			Agent:     *agent,
			StartDate: *startDate,
			EndDate:   *endDate,
		}, *format, *output)
	case "logs":
		data, err = c.ExportLogs(ctx, client.LogQuery{
			Namespace: ns,
			Agent:     *agent,
			StartDate: *startDate,
			EndDate:   *endDate,
		}, *format, *output)
	default:
		return fmt.Errorf("unknown kind %q (want records or logs)", *kind)
	}
	if err != nil {
		return err
	}

	if *output == "" {
		os.Stdout.Write(data)
	} else {
		fmt.Printf("Exported %d bytes to %s\n", len(data), *output)
	}
	return nil
}

func runResend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resend", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	kind := fs.String("kind", "", "Restrict to records or logs (default both)")
	list := fs.Bool("list", false, "List spooled chunks without sending")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	store, err := openSpool(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, *kind)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Spool is empty")
		return nil
	}

	if *list {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tITEMS\tSPOOLED AT\tREASON")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				e.ID, e.Kind, e.Items, e.CreatedAt.Format(time.RFC3339), e.Reason)
		}
		return w.Flush()
	}

	c, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	sent, failed := 0, 0
	for _, e := range entries {
		var sendErr error
		switch e.Kind {
		case spool.KindRecords:
			records, err := spool.DecodeRecords(e)
			if err != nil {
				return err
			}
			summary := c.UploadRecords(ctx, records)
			if n := summary.FailedItems(); n > 0 {
				sendErr = fmt.Errorf("%d of %d records failed", n, summary.TotalItems)
			}
		case spool.KindLogs:
			logs, err := spool.DecodeLogs(e)
			if err != nil {
				return err
			}
			summary := c.UploadLogs(ctx, logs)
			if n := summary.FailedItems(); n > 0 {
				sendErr = fmt.Errorf("%d of %d logs failed", n, summary.TotalItems)
			}
		}

		if sendErr != nil {
			failed++
			logger.Warn("resend failed, chunk kept", "id", e.ID, "error", sendErr)
			continue
		}
		if err := store.Delete(ctx, e.ID); err != nil {
			return err
		}
		sent++
	}

	fmt.Printf("Resent %d chunks, %d still spooled\n", sent, failed)
	if failed > 0 {
		return fmt.Errorf("%d chunks could not be resent", failed)
	}
	return nil
}

func runSession(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	namespace := fs.String("namespace", "", "Namespace (default from config)")
	userID := fs.String("user", "", "User id (default anonymous)")
	forceNew := fs.Bool("new", false, "Force a new session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	c, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	ns := *namespace
	if ns == "" {
		ns = cfg.Namespace
	}
	if ns == "" {
		return fmt.Errorf("-namespace is required (or set namespace in the config)")
	}
	user := *userID
	if user == "" {
		user = session.AnonymousUser
	}
	timeout := cfg.Session.InactivityTimeout
	if timeout <= 0 {
		timeout = session.DefaultInactivityTimeout
	}

	id, reused, err := c.GetOrCreateSession(ctx, ns, user, timeout, *forceNew)
	if err != nil {
		return err
	}
	state := "created"
	if reused {
		state = "reused"
	}
	fmt.Printf("%s (%s)\n", id, state)
	return nil
}

func openSpool(cfg *config.Config) (*spool.Store, error) {
	path := cfg.Spool.Path
	if path == "" {
		path = defaultSpoolPath
	}
	return spool.NewStore(path, nil)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
