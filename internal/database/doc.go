// Package database provides the PostgreSQL connection pool and schema for
// the online-event log.
//
// The log is optional. When enabled, every stream.online observation is
// appended to stream_online_events, keyed by event id so the EventSub and
// poll paths never write the same event twice.
package database
