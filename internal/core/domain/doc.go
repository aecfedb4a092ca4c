// Package domain defines the core domain models for meshsync.
//
// Domain models are pure value objects and entities without any IO
// dependencies or framework coupling: replicated entities, peer
// sessions, snapshots, and the structured error type shared by the
// rest of the module.
package domain
