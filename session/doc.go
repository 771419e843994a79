// ABOUTME: Package session assigns time-windowed session ids to users.
// ABOUTME: Sessions expire after a configurable window of inactivity.

// Package session maps (namespace, user) pairs to time-bounded session
// identifiers with inactivity-based expiry. Every call that hits an active
// session slides its expiry window forward; once a session has been idle
// longer than the timeout, the next call mints a fresh id.
//
// Session ids have the form {namespace}-{user}-{yyyymmdd-hhmmss}, derived
// from the creation instant.
//
// The Manager keeps sessions in memory. PersistentManager layers a backend
// lookup on top for stateless environments (REST handlers, serverless
// workers) where process memory does not survive between calls.
package session
