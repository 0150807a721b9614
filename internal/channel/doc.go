// Package channel implements the bounded broadcast channel at the heart of
// the relay.
//
// One publisher-facing Publish call fans a frame out to any number of
// Subscriptions. The channel retains only the most recent frames in a ring
// buffer: a subscriber that falls behind loses the evicted frames and gets a
// single LaggedError before resuming at the oldest retained frame. Publish
// never blocks, so a slow subscriber costs itself data but never delays the
// publisher or other subscribers.
package channel
