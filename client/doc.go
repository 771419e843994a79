// ABOUTME: HTTP client for the MonkAI collection API.
// ABOUTME: Uploads, queries, exports, and server-side session handling.

// Package client talks to the MonkAI collection API over JSON HTTP.
//
// A Client is created with a tracer token and communicates with the
// upload, query, export, and session endpoints. Transport failures and
// 5xx responses are retried with exponential backoff; 4xx responses are
// not. Batch uploads are chunked, and each chunk carries an idempotency
// key so a retried request is never double-counted server side.
//
// Errors returned by the client are typed: AuthError for rejected
// credentials, ValidationError for malformed payloads, ServerError for
// 5xx responses, and NetworkError for transport problems.
package client
