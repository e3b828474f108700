// Package frame implements the Frame Reader.
//
// The Frame Reader:
//   - Consumes chunks from a message-oriented socket (WebSocket)
//   - Marks every socket message boundary with a 0x00 sentinel in its buffer
//   - Yields complete messages as spans of a single reused buffer
//   - Rejects payloads that contain the sentinel (JSON text never does)
package frame
