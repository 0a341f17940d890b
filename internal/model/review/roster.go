package review

// Profile captures the public attributes of one tribunal reviewer.
type Profile struct {
	Key       Reviewer `json:"key"`
	Name      string   `json:"name"`
	Mandate   string   `json:"mandate"`
	Tone      string   `json:"tone"`
	Expertise []string `json:"expertise"`
	Keywords  []string `json:"keywords"`
	VoiceID   string   `json:"voiceId"`
	Intensity float64  `json:"intensity"`
}

// NarratorVoiceID is the voice used for verdict narration.
const NarratorVoiceID = "onwK4e9ZLuTAKqWW03F9"

// Roster returns the four fixed reviewers in canonical order.
func Roster() []Profile {
	return []Profile{
		{
			Key:       Skeptic,
			Name:      "The Skeptic",
			Mandate:   "Questions everything, finds alternative explanations",
			Tone:      "probing, contrarian, never hostile",
			Expertise: []string{"alternative explanations", "confounding variables", "reverse causation", "selection bias"},
			Keywords:  []string{"skeptic", "alternative", "confound", "bias", "causation"},
			VoiceID:   "pNInz6obpgDQGcFmaJgB",
			Intensity: 0.6,
		},
		{
			Key:       Statistician,
			Name:      "The Statistician",
			Mandate:   "Audits numbers, catches p-hacking",
			Tone:      "precise, dry, numbers-first",
			Expertise: []string{"p-values", "effect sizes", "power analysis", "statistical tests", "multiple comparisons"},
			Keywords:  []string{"statistic", "p-value", "sample", "power", "significance", "effect size", "confidence"},
			VoiceID:   "21m00Tcm4TlvDq8ikWAM",
			Intensity: 0.4,
		},
		{
			Key:       Methodologist,
			Name:      "The Methodologist",
			Mandate:   "Evaluates experimental design",
			Tone:      "systematic, exacting, procedural",
			Expertise: []string{"experimental design", "controls", "blinding", "randomization", "measurement validity"},
			Keywords:  []string{"method", "design", "control", "blind", "randomiz", "protocol", "replicat"},
			VoiceID:   "EXAVITQu4vr4xnSDxMaL",
			Intensity: 0.5,
		},
		{
			Key:       Ethicist,
			Name:      "The Ethicist",
			Mandate:   "Identifies bias and conflicts",
			Tone:      "measured, principled, societally minded",
			Expertise: []string{"conflicts of interest", "bias", "consent", "reproducibility", "data privacy"},
			Keywords:  []string{"ethic", "conflict", "funding", "consent", "privacy", "bias", "disclosure"},
			VoiceID:   "ThT5KcBeYPX3keUQqHPh",
			Intensity: 0.5,
		},
	}
}

// Store exposes reviewer profiles to HTTP handlers and services.
type Store interface {
	List() []Profile
	FindByKey(key Reviewer) (Profile, bool)
}

// MemoryStore implements Store with an in-memory slice; the roster is fixed
// for the lifetime of the process.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// List returns the reviewer profiles in canonical order.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByKey looks up a reviewer profile by its role key.
func (s *MemoryStore) FindByKey(key Reviewer) (Profile, bool) {
	for _, item := range s.items {
		if item.Key == key {
			return item, true
		}
	}
	return Profile{}, false
}
