// Package archive records the connection event stream into PostgreSQL.
//
// A Recorder reads from a connection.Watcher and batches two kinds of rows:
//   - realtime_messages: application frames, one row per message
//   - realtime_events: lifecycle events (state changes, reconnects, errors)
//
// Rows are written with pgx.Batch on a size or time trigger, whichever comes
// first. A failed batch is logged and dropped; the live connection is never
// slowed down by the database.
package archive
