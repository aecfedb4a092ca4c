// Package transport provides the datagram endpoints the protocol
// rides on.
//
// An Endpoint owns exactly one socket-like resource and moves raw
// byte buffers; it has no knowledge of framing, sequencing, or
// retries. Receive is non-blocking apart from a short poll interval
// and reports ErrNoData when nothing is pending, so the receive
// context can observe its stop flag between polls.
//
// Three implementations exist: UDP (the production transport), a
// websocket bridge for clients that cannot open UDP sockets, and an
// in-memory loopback pair used by tests.
package transport
