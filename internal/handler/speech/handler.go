package speech

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	speechmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/speech"
	speechservice "github.com/zhouzirui/paper-tribunal/backend/internal/service/speech"
	"github.com/zhouzirui/paper-tribunal/backend/pkg/utils"
)

// Synthesizer renders one utterance; the production implementation is
// the ElevenLabs client.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speechmodel.SynthesisRequest) (speechmodel.SynthesisResult, error)
}

// Handler serves one-off synthesis requests for operators and the
// speechtester tool. The live session audio path goes through the speech
// queue, not through here.
type Handler struct {
	synth   Synthesizer
	roster  review.Store
	voices  map[string]speechservice.VoiceProfile
	modelID string
	format  string
}

// New creates the speech handler. synth may be nil when the speech
// backend is disabled.
func New(synth Synthesizer, roster review.Store, modelID, format string) *Handler {
	return &Handler{
		synth:   synth,
		roster:  roster,
		voices:  speechservice.VoiceProfiles(roster.List()),
		modelID: modelID,
		format:  format,
	}
}

// RegisterRoutes registers the synthesis route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/speech/synthesize", h.handleSynthesize)
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if h.synth == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis disabled")
		return
	}

	var payload struct {
		Text     string `json:"text"`
		Reviewer string `json:"reviewer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	speaker := payload.Reviewer
	if speaker == "" {
		speaker = speechservice.NarratorSpeaker
	}
	vp, ok := h.voices[speaker]
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "unknown reviewer")
		return
	}

	result, err := h.synth.Synthesize(r.Context(), speechservice.BuildRequest(payload.Text, vp, h.modelID, h.format))
	if err != nil {
		utils.RespondError(w, http.StatusBadGateway, "synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(result.Audio)
}
