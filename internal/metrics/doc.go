// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - EventSub session count, state and subscription cost
//   - Reconciliation cycle outcomes and session creation
//   - Helix API request counts and rate-limit waits
//   - EventSub message rates by type and dropped messages
//   - Notification and event-log throughput
package metrics
