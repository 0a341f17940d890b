package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	speechmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/speech"
)

type fakeSynthesizer struct {
	lastReq speechmodel.SynthesisRequest
	fail    bool
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req speechmodel.SynthesisRequest) (speechmodel.SynthesisResult, error) {
	f.lastReq = req
	if f.fail {
		return speechmodel.SynthesisResult{}, context.DeadlineExceeded
	}
	return speechmodel.SynthesisResult{Audio: []byte("mp3-bytes"), Format: req.Format}, nil
}

func newSpeechRouter(synth Synthesizer) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		New(synth, review.NewMemoryStore(review.Roster()), "eleven_turbo_v2_5", "mp3_44100_128").RegisterRoutes(api)
	})
	return r
}

func postSynthesize(t *testing.T, router http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/speech/synthesize", &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSynthesizeUsesReviewerVoice(t *testing.T) {
	synth := &fakeSynthesizer{}
	router := newSpeechRouter(synth)

	rec := postSynthesize(t, router, map[string]string{"text": "objection", "reviewer": "skeptic"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", got)
	}
	if rec.Body.String() != "mp3-bytes" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	var skepticVoice string
	for _, p := range review.Roster() {
		if p.Key == review.Skeptic {
			skepticVoice = p.VoiceID
		}
	}
	if synth.lastReq.VoiceID != skepticVoice {
		t.Fatalf("expected skeptic voice %s, got %s", skepticVoice, synth.lastReq.VoiceID)
	}
	if synth.lastReq.ModelID != "eleven_turbo_v2_5" {
		t.Fatalf("unexpected model id %s", synth.lastReq.ModelID)
	}
}

func TestSynthesizeDefaultsToNarrator(t *testing.T) {
	synth := &fakeSynthesizer{}
	router := newSpeechRouter(synth)

	rec := postSynthesize(t, router, map[string]string{"text": "the verdict is in"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if synth.lastReq.VoiceID != review.NarratorVoiceID {
		t.Fatalf("expected narrator voice, got %s", synth.lastReq.VoiceID)
	}
}

func TestSynthesizeRejectsUnknownReviewer(t *testing.T) {
	router := newSpeechRouter(&fakeSynthesizer{})

	rec := postSynthesize(t, router, map[string]string{"text": "hi", "reviewer": "bailiff"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSynthesizeUnavailableWithoutBackend(t *testing.T) {
	router := newSpeechRouter(nil)

	rec := postSynthesize(t, router, map[string]string{"text": "hi", "reviewer": "skeptic"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSynthesizeFailureIsBadGateway(t *testing.T) {
	router := newSpeechRouter(&fakeSynthesizer{fail: true})

	rec := postSynthesize(t, router, map[string]string{"text": "hi", "reviewer": "skeptic"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
