package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/paper-tribunal/backend/internal/service/tribunal"
	"github.com/zhouzirui/paper-tribunal/backend/pkg/utils"
)

const heartbeatEvery = 8 * time.Second

// Handler serves the per-session SSE event feed.
type Handler struct {
	svc *tribunal.Service
}

// New creates the stream handler.
func New(svc *tribunal.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the SSE feed route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tribunal/session/{id}/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snap, err := h.svc.State(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	events, cancel := h.svc.Bus().Subscribe(sessionID)
	defer cancel()

	utils.SetupSSEHeaders(w)
	log.Printf("[sse] session=%s stream opened", sessionID)

	// Opening snapshot so late subscribers see the current state.
	utils.SendSSEEvent(w, flusher, string(tribunal.EventSession), snap.Session)

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] session=%s stream closed", sessionID)
			return
		case evt, open := <-events:
			if !open {
				log.Printf("[sse] session=%s feed dropped", sessionID)
				return
			}
			utils.SendSSEEvent(w, flusher, string(evt.Type), evt)
		case <-ticker.C:
			utils.SendSSEComment(w, flusher, "heartbeat")
		}
	}
}
