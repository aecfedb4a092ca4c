package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/unknownsaying/meshsync/internal/server/httpserver/handler"
)

// RouterConfig assembles the admin API router.
type RouterConfig struct {
	// Directory answers peer and entity queries; *server.Server
	// satisfies it.
	Directory handler.Directory

	// Profiles serves stored peer profiles. Nil disables the
	// profiles endpoint.
	Profiles handler.ProfileSource

	// Logger for request logging.
	Logger *slog.Logger

	// TokenHash is the SHA-256 of the required bearer token. Empty
	// skips authentication; only the local socket mounts the router
	// that way.
	TokenHash string

	// AllowList restricts callers by IP or CIDR. Empty admits all.
	AllowList []string

	// RateLimit is the per-IP request budget per second. Zero
	// disables limiting.
	RateLimit int
}

// NewRouter builds the admin API handler with its middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.Directory, cfg.Profiles, log)

	middlewares := []Middleware{
		RequestID(),
		Recover(log),
		RequestLog(log),
	}
	if len(cfg.AllowList) > 0 {
		middlewares = append(middlewares, NetworkACL(cfg.AllowList, log))
	}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimit(cfg.RateLimit))
	}
	if cfg.TokenHash != "" {
		middlewares = append(middlewares, Auth(cfg.TokenHash))
	}

	return Chain(h, middlewares...)
}
