// Package poller implements the followed-stream poller.
//
// The poller:
//   - Fetches every followed live stream once a minute
//   - Reports streams whose id was not live at the previous poll
//   - Resolves broadcaster profiles in chunks of 100, cached with a
//     sliding one-hour expiry
//   - Emits model.StreamOnline with source="poll"
//
// It complements EventSub: notifications are faster, the poll catches
// broadcasters whose subscription is still pending.
package poller
