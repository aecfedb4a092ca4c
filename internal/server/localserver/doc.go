// Package localserver serves the admin API over a Unix domain
// socket for local management access.
//
// No bearer token is required on this surface: filesystem permissions
// on the socket path gate access instead. A stale socket file is
// replaced on start and the file is removed on shutdown.
package localserver
