// Package command defines the meshsync-cli commands using
// urfave/cli/v2:
//
//   - ping: measure round trip time to a server
//   - chat: send a line or listen to the chat channel
//   - rpc: invoke a named procedure on the server or a peer
//   - watch: stream interpolated entity states
//   - status: query the observability endpoint
package command
