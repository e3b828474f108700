// Package notify delivers stream-online alerts.
//
// Observations from EventSub and the poller arrive at Service.HandleOnline,
// which drops repeats per broadcaster, builds a Notification and queues it
// on a bounded Provider. A single goroutine drains the queue through a
// Deliverer; the default one writes a log line.
package notify
