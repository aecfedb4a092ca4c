package handler

import "net/http"

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatusSummary{
		Peers:    len(h.dir.Peers()),
		Entities: len(h.dir.Entities()),
	})
}

func (h *Handler) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	history := h.dir.ChatHistory()
	out := make([]ChatEntry, 0, len(history))
	for _, m := range history {
		out = append(out, chatEntry(m))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		h.writeErr(w, http.StatusNotFound, "persistence disabled")
		return
	}
	profiles, err := h.profiles.Profiles(r.Context())
	if err != nil {
		h.logger.Error("profile listing failed", "error", err)
		h.writeErr(w, http.StatusInternalServerError, "profile listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, profiles)
}
