package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/unknownsaying/meshsync/internal/core/domain"
)

func (h *Handler) handleListPeers(w http.ResponseWriter, r *http.Request) {
	peers := h.dir.Peers()
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, peerInfo(p))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeErr(w, http.StatusBadRequest, "invalid peer id")
		return
	}
	p, ok := h.dir.Peer(domain.PeerID(id))
	if !ok {
		h.writeErr(w, http.StatusNotFound, "peer not found")
		return
	}
	h.writeJSON(w, http.StatusOK, peerInfo(p))
}

func (h *Handler) handleKickPeer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeErr(w, http.StatusBadRequest, "invalid peer id")
		return
	}

	// The body is optional; an absent reason gets a default.
	var req KickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "kicked by admin"
	}

	if err := h.dir.Kick(domain.PeerID(id), req.Reason); err != nil {
		if errors.Is(err, domain.ErrPeerNotFound) {
			h.writeErr(w, http.StatusNotFound, "peer not found")
			return
		}
		h.logger.Error("kick failed", "peer", id, "error", err)
		h.writeErr(w, http.StatusInternalServerError, "kick failed")
		return
	}

	h.logger.Info("peer kicked", "peer", id, "reason", req.Reason)
	h.writeJSON(w, http.StatusOK, map[string]any{"kicked": id})
}
