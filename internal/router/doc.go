// Package router dispatches EventSub envelopes from the session pool.
//
// stream.online notifications become model.StreamOnline values handed to
// every registered OnlineHandler; redelivered message ids are dropped.
// Session control messages are counted and logged.
//
// Buffer is the generic queue that decouples handlers from slow consumers
// such as the database writer.
package router
