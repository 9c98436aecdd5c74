// Package refresh keeps OAuth credentials fresh without user involvement.
//
// The manager arms one proactive timer per integration at 80% of the
// token's TTL and exposes RefreshNow for on-demand refreshes; concurrent
// refreshes for the same id are deduplicated through singleflight.
// Failures classified transient are retried with bounded exponential
// backoff; permanent failure demotes the integration's status indicator to
// auth_expired and disarms its timer.
package refresh
