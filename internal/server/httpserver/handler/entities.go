package handler

import (
	"net/http"

	"github.com/unknownsaying/meshsync/internal/core/domain"
)

func (h *Handler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities := h.dir.Entities()
	out := make([]EntityInfo, 0, len(entities))
	for _, e := range entities {
		out = append(out, entityInfo(e))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.writeErr(w, http.StatusBadRequest, "invalid entity id")
		return
	}
	e, ok := h.dir.Entity(domain.EntityID(id))
	if !ok {
		h.writeErr(w, http.StatusNotFound, "entity not found")
		return
	}
	h.writeJSON(w, http.StatusOK, entityInfo(e))
}
