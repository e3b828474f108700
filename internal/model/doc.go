// Package model defines the data types shared across streamwatch.
//
// Conventions:
//   - IDs: Twitch user and stream ids as strings
//   - ReceivedAt: int64 microseconds since Unix epoch
//   - StartedAt: time.Time as reported by Twitch
package model
