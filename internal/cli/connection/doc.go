// Package connection dials a meshsync server for the CLI: plain UDP
// by default, or the WebSocket bridge when the target is a ws:// or
// wss:// URL.
package connection
