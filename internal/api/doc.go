// Package api provides the Twitch Helix REST client.
//
// REST endpoint:
//   - https://api.twitch.tv/helix
//
// Endpoints used: /users, /channels/followed, /streams, /streams/followed,
// /eventsub/subscriptions.
//
// Every request goes through a rate-limit-aware retry policy: 429 responses
// wait for the Ratelimit-Reset time (clamped) and are retried up to a fixed
// number of attempts; every other failure is returned immediately.
package api
