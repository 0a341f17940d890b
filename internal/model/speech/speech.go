package speech

import "time"

// SynthesisRequest asks the speech backend for one rendered utterance.
type SynthesisRequest struct {
	Text            string  `json:"text"`
	VoiceID         string  `json:"voiceId"`
	ModelID         string  `json:"modelId"`
	Format          string  `json:"format"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarityBoost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"speakerBoost"`
	Speed           float64 `json:"speed"`
}

// SynthesisResult carries the rendered audio.
type SynthesisResult struct {
	Audio     []byte    `json:"-"`
	Format    string    `json:"format"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Utterance is one line of tribunal speech queued for synthesis and
// playback. The epoch is stamped at enqueue time; a stale epoch means the
// utterance was overtaken by an interruption and must never play.
type Utterance struct {
	SessionID string  `json:"sessionId"`
	Seq       int     `json:"seq"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	VoiceID   string  `json:"voiceId"`
	Intensity float64 `json:"intensity"`
	Epoch     uint64  `json:"epoch"`
}

// Delivery is what playback hands to the transport layer, in strict queue
// order. TextOnly marks an utterance whose synthesis failed and which is
// delivered without audio.
type Delivery struct {
	Utterance
	AudioRef string `json:"audioRef,omitempty"`
	TextOnly bool   `json:"textOnly,omitempty"`
}
