package speech

import (
	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	speechmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/speech"
)

// NarratorSpeaker is the synthetic speaker key for verdict narration.
const NarratorSpeaker = "narrator"

// VoiceProfile maps a speaker onto a synthesis voice and a base vocal
// intensity. Intensity drives the vocal parameters: more intense voices
// get lower stability and more style.
type VoiceProfile struct {
	VoiceID   string
	Intensity float64
}

// VoiceProfiles builds the speaker table from the reviewer roster plus
// the narrator.
func VoiceProfiles(roster []review.Profile) map[string]VoiceProfile {
	profiles := make(map[string]VoiceProfile, len(roster)+1)
	for _, p := range roster {
		profiles[string(p.Key)] = VoiceProfile{VoiceID: p.VoiceID, Intensity: p.Intensity}
	}
	profiles[NarratorSpeaker] = VoiceProfile{VoiceID: review.NarratorVoiceID, Intensity: 0.3}
	return profiles
}

// BuildRequest derives the synthesis request for one utterance.
func BuildRequest(text string, vp VoiceProfile, modelID, format string) speechmodel.SynthesisRequest {
	stability := 1.0 - vp.Intensity*0.5
	if stability < 0.3 {
		stability = 0.3
	}
	return speechmodel.SynthesisRequest{
		Text:            text,
		VoiceID:         vp.VoiceID,
		ModelID:         modelID,
		Format:          format,
		Stability:       stability,
		SimilarityBoost: 0.8,
		Style:           vp.Intensity * 0.5,
		SpeakerBoost:    true,
		Speed:           1.0,
	}
}
