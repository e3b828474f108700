// Package writer persists stream.online observations to PostgreSQL.
//
// OnlineEventWriter is an OnlineHandler that buffers events and inserts
// them in batches, on size or on a flush interval. Inserts are append-only
// with ON CONFLICT DO NOTHING keyed on the stream id, so the EventSub and
// poll observations of one stream produce a single row.
package writer
