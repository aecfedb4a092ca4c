// Package sequence implements the sequencing and reliability layer:
// wrap-aware 16-bit sequence numbers, per-peer outgoing counters,
// inbound duplicate/gap tracking with an acknowledgment bitfield, a
// packet-loss moving average, and the retransmission queue reliable
// messages ride on.
//
// Counters and trackers carry their own small locks so that sequence
// assignment never serializes behind the entity or peer table locks.
package sequence
