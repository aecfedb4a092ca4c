// Package client implements the game-side protocol runtime: the
// connection handshake, input sending with local prediction, snapshot
// consumption with interpolation for remote entities and
// reconciliation for owned ones, and the chat, voice, and RPC
// channels.
//
// The client is single-threaded by contract. The owner calls Poll to
// drain the endpoint, Tick on its frame cadence, and the senders in
// between; none of them may be called concurrently.
package client
