// ABOUTME: Package buffer queues finished records or logs and flushes them
// ABOUTME: to an uploader in chunks when full or on demand.

// Package buffer implements the batching layer between record producers
// and the upload client. A Buffer accumulates items in FIFO order and
// flushes them when the batch-size threshold is reached (when auto-upload
// is enabled) or when the caller flushes manually.
//
// A flush captures a snapshot of the queue: items enqueued while an upload
// is in flight are preserved for the next flush, never folded into the
// running one. Failed chunks do not block or roll back successful ones;
// they are reported in the returned summary and, optionally, handed to a
// failure callback for durable spooling.
//
// Conversation records and log entries each get their own Buffer instance,
// independently sized and independently flushed.
package buffer
