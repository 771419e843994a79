// ABOUTME: slog.Handler that ships application logs to the collection API.
// ABOUTME: Converts records to log entries and batches them for upload.

// Package tracelog bridges log/slog to the collection API.
//
// Handler implements slog.Handler: each record becomes a log entry with
// its attributes folded into a custom object, queued in a batch buffer
// and uploaded when the batch size is reached. The handler never blocks
// logging on the network and never surfaces upload failures to the host
// application; problems go to an internal diagnostic logger instead.
//
// Typical wiring:
//
//	h, _ := tracelog.NewHandler(c.LogUploader(), tracelog.Options{
//		Namespace: "acme",
//		Agent:     "support-bot",
//	})
//	defer h.Close(ctx)
//	logger := slog.New(h)
package tracelog
