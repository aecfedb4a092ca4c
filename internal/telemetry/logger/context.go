package logger

import "context"

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	// loggerKey is the context key for the logger.
	loggerKey contextKey = "meshsync.logger"
	// peerIDKey is the context key for the acting peer's id.
	peerIDKey contextKey = "meshsync.peer_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context. Returns the default
// logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithPeerID tags the context with the peer a request acts for.
func WithPeerID(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, peerIDKey, id)
}

// PeerIDFromContext extracts the peer id from context.
func PeerIDFromContext(ctx context.Context) (uint32, bool) {
	id, ok := ctx.Value(peerIDKey).(uint32)
	return id, ok
}

// L is a shorthand for FromContext that also enriches the logger with
// the peer id when the context carries one.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if id, ok := PeerIDFromContext(ctx); ok {
		l = l.With("peer_id", id)
	}
	return l
}
