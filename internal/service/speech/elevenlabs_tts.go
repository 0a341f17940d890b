package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/config"
	speechmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/speech"
)

// ElevenLabsClient is the one-shot HTTP text-to-speech client. One POST
// per utterance, mp3 bytes back.
type ElevenLabsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewElevenLabsClient builds the client from the speech configuration.
func NewElevenLabsClient(cfg config.SpeechConfig) *ElevenLabsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ElevenLabsClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type synthesisBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

// Synthesize renders one utterance to audio bytes.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, req speechmodel.SynthesisRequest) (speechmodel.SynthesisResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return speechmodel.SynthesisResult{}, fmt.Errorf("synthesis text is empty")
	}
	if req.VoiceID == "" {
		return speechmodel.SynthesisResult{}, fmt.Errorf("synthesis voice id is empty")
	}

	body, err := json.Marshal(synthesisBody{
		Text:    req.Text,
		ModelID: req.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       req.Stability,
			SimilarityBoost: req.SimilarityBoost,
			Style:           req.Style,
			UseSpeakerBoost: req.SpeakerBoost,
			Speed:           req.Speed,
		},
	})
	if err != nil {
		return speechmodel.SynthesisResult{}, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		c.baseURL, url.PathEscape(req.VoiceID), url.QueryEscape(req.Format))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return speechmodel.SynthesisResult{}, fmt.Errorf("failed to build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return speechmodel.SynthesisResult{}, fmt.Errorf("synthesis call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return speechmodel.SynthesisResult{}, fmt.Errorf("synthesis failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return speechmodel.SynthesisResult{}, fmt.Errorf("failed to read synthesis audio: %w", err)
	}
	if len(audio) == 0 {
		return speechmodel.SynthesisResult{}, fmt.Errorf("synthesis returned no audio")
	}

	return speechmodel.SynthesisResult{
		Audio:     audio,
		Format:    req.Format,
		RequestID: resp.Header.Get("request-id"),
		CreatedAt: time.Now(),
	}, nil
}
