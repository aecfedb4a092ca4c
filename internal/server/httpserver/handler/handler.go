package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/unknownsaying/meshsync/internal/channel"
	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/internal/storage"
)

// Directory answers live state queries. *server.Server satisfies it;
// its accessors return copies, so handlers run safely off the
// simulation goroutines.
type Directory interface {
	Peers() []domain.Peer
	Peer(id domain.PeerID) (domain.Peer, bool)
	Entities() []domain.Entity
	Entity(id domain.EntityID) (domain.Entity, bool)
	ChatHistory() []channel.ChatMessage
	Kick(id domain.PeerID, reason string) error
}

// ProfileSource serves persisted peer profiles.
type ProfileSource interface {
	Profiles(ctx context.Context) ([]storage.Profile, error)
}

// Handler routes admin API requests.
type Handler struct {
	dir      Directory
	profiles ProfileSource
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New builds the handler. profiles may be nil when the server runs
// without a store.
func New(dir Directory, profiles ProfileSource, logger *slog.Logger) *Handler {
	h := &Handler{
		dir:      dir,
		profiles: profiles,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /api/v1/status", h.handleStatus)
	h.mux.HandleFunc("GET /api/v1/peers", h.handleListPeers)
	h.mux.HandleFunc("GET /api/v1/peers/{id}", h.handleGetPeer)
	h.mux.HandleFunc("POST /api/v1/peers/{id}/kick", h.handleKickPeer)
	h.mux.HandleFunc("GET /api/v1/entities", h.handleListEntities)
	h.mux.HandleFunc("GET /api/v1/entities/{id}", h.handleGetEntity)
	h.mux.HandleFunc("GET /api/v1/chat", h.handleChatHistory)
	h.mux.HandleFunc("GET /api/v1/profiles", h.handleListProfiles)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(w.Header().Get("X-Request-ID"), data)); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(NewErrorResponse(w.Header().Get("X-Request-ID"), message))
}

// pathID parses the {id} path segment as an unsigned integer.
func pathID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	return id, err == nil
}
