// Package session tracks connected peers: identity, address,
// liveness, and round-trip estimates.
//
// The server holds one Registry covering every client; a client holds
// a Registry with a single entry for the server. Peer records live
// behind one read-write lock; per-peer sequence state deliberately
// lives elsewhere (see internal/sequence) so sends never serialize
// behind registry access.
package session
