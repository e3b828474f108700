// Package connection implements the Session Client and the Pool Reconciler.
//
// A Session:
//   - Owns one EventSub WebSocket connection and its read pipeline
//     (frame reader, envelope decoder, handler fan-out)
//   - Moves Idle → Connecting → OpenUnready → OpenReady → Closing → Closed
//   - Tracks the subscriptions bound to its session id and their cost
//   - Refuses subscribe/unsubscribe until the welcome arrives
//
// The Manager:
//   - Diffs the desired target set against subscriptions held by live sessions
//   - Routes adds to sessions with spare budget, opening at most one new
//     session per cycle when none has room
//   - Collects closed sessions; their targets are re-added next cycle
//   - Forwards every received envelope to a single output channel
package connection
