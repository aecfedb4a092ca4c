// Package replication implements the entity replication engine.
//
// The server side owns the authoritative entity table and builds
// bounded snapshots of recently changed entities on a fixed tick. The
// client side consumes snapshots two ways: entities owned by other
// peers are blended smoothly between their last two received states
// (interpolation), while entities the local peer owns are advanced
// immediately from local input (prediction) and corrected against the
// server's accepted state when they diverge (reconciliation).
//
// The entity table sits behind a single read-write lock: snapshot
// building and interpolation read concurrently, incoming updates
// write exclusively. No lock is ever held across a network call.
package replication
