// Package httpserver provides the admin HTTP API: peer and entity
// inspection, chat history, stored profiles, and kicks.
//
// The router is mounted in two places with different trust levels:
// on the observability listener behind bearer-token authentication,
// and on the local management socket without authentication, since
// filesystem permissions already gate access there.
package httpserver
