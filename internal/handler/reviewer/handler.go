package reviewer

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	"github.com/zhouzirui/paper-tribunal/backend/pkg/utils"
)

// Handler serves the fixed reviewer roster.
type Handler struct {
	roster review.Store
}

// New creates the reviewer handler.
func New(roster review.Store) *Handler {
	return &Handler{roster: roster}
}

// RegisterRoutes registers the roster routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reviewers", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.roster.List())
}
