package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/paper-tribunal/backend/internal/service/ingest"
	sessionstore "github.com/zhouzirui/paper-tribunal/backend/internal/service/session"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/tribunal"
	"github.com/zhouzirui/paper-tribunal/backend/pkg/utils"
)

// Handler is the REST surface of the tribunal orchestrator.
type Handler struct {
	svc *tribunal.Service
}

// New creates the session handler.
func New(svc *tribunal.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the tribunal session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/tribunal/session", h.handleStart)
	r.Get("/tribunal/session/{id}", h.handleState)
	r.Post("/tribunal/session/{id}/message", h.handleMessage)
	r.Post("/tribunal/session/{id}/interrupt", h.handleInterrupt)
	r.Post("/tribunal/session/{id}/verdict", h.handleVerdict)
	r.Get("/tribunal/session/{id}/audio/{turnSeq}", h.handleAudio)
	r.Get("/memory/search", h.handleMemorySearch)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := h.svc.StartSession(r.Context(), payload.Title, payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text      string `json:"text"`
		Interrupt bool   `json:"interrupt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	turns, err := h.svc.SendMessage(r.Context(), chi.URLParam(r, "id"), payload.Text, payload.Interrupt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (h *Handler) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Interrupt(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "interrupted"})
}

func (h *Handler) handleVerdict(w http.ResponseWriter, r *http.Request) {
	verdict, record, err := h.svc.RequestVerdict(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"verdict": verdict, "commit": record})
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(chi.URLParam(r, "turnSeq"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid turn sequence")
		return
	}

	audio, ok := h.svc.Audio(chi.URLParam(r, "id"), seq)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "audio not available")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func (h *Handler) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.svc.SearchMemory(r.Context(), query, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"results": records})
}

// respondServiceError maps service sentinels onto HTTP statuses:
// ingestion rejections are 400, unknown sessions 404, lifecycle misuse
// 409, disabled backends 503.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrEmptyDocument),
		errors.Is(err, ingest.ErrDocumentTooShort),
		errors.Is(err, ingest.ErrUnsupportedLanguage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sessionstore.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sessionstore.ErrInvalidTransition),
		errors.Is(err, sessionstore.ErrVerdictExists),
		errors.Is(err, tribunal.ErrSessionConcluded):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tribunal.ErrMemoryUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
