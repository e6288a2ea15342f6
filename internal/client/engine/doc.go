// Package engine is the offline-first synchronization core. It owns the
// reconciliation loop between the local mirror and the remote service:
// optimistic mutations enqueue durable change entries, the push reconciler
// drains them FIFO against the server, the pull reconciler merges server
// snapshots back without clobbering unacknowledged local work, and detected
// version conflicts park entities until an explicit local-or-server
// resolution.
//
// Staleness and conflict detection compare wall-clock timestamps issued by
// the server against the device's local mutation times. The protocol assumes
// reasonably synchronized clocks; it is not a vector-clock or CRDT design.
package engine
