// Package eventsub implements the Message Envelope Decoder.
//
// The decoder:
//   - Parses one EventSub WebSocket message into metadata plus a typed payload
//   - Recognizes session_welcome, session_keepalive, notification,
//     session_reconnect and revocation messages
//   - Keeps the raw event object so handlers can decode types it does not model
//   - Reports malformed messages as ErrMalformedEnvelope (protocol violation)
package eventsub
