// Package server wires the transport, session registry, replication
// engine, and side channels into the authoritative game server.
//
// Two loops drive it: a receive loop that drains the endpoint and
// dispatches packets, and a fixed-rate tick loop that builds
// snapshots, retransmits unacknowledged reliable packets, pings
// peers, evicts the silent, and checkpoints the world. Both are
// exposed as plain methods (PollOnce, Tick) so tests can drive the
// server deterministically without timers.
package server
