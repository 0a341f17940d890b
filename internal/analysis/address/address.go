package address

import (
	"sort"
	"strings"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
)

// Direct role stems. A stem match is exclusive: once any reviewer is
// named, the expertise keywords are not consulted.
var roleStems = map[review.Reviewer]string{
	review.Skeptic:       "skeptic",
	review.Statistician:  "statistic",
	review.Methodologist: "method",
	review.Ethicist:      "ethic",
}

// generalCues mark a message as aimed at the whole bench.
var generalCues = []string{"what do you", "thoughts"}

// Resolve determines which reviewers a user utterance addresses, in
// canonical order. It is a pure function of its inputs: direct role
// mention wins, then expertise keywords, then question-like messages
// address the full bench. An empty result means nobody was addressed;
// callers apply their own fallback.
func Resolve(text string, roster []review.Profile) []review.Reviewer {
	lower := strings.ToLower(text)

	var out []review.Reviewer
	for key, stem := range roleStems {
		if strings.Contains(lower, stem) {
			out = append(out, key)
		}
	}

	if len(out) == 0 {
		for _, profile := range roster {
			for _, keyword := range profile.Keywords {
				if keyword == "" {
					continue
				}
				if strings.Contains(lower, strings.ToLower(keyword)) {
					out = append(out, profile.Key)
					break
				}
			}
		}
	}

	if len(out) == 0 && questionLike(text, lower) {
		return review.CanonicalOrder()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

func questionLike(text, lower string) bool {
	if strings.Contains(text, "?") || strings.Contains(text, "？") {
		return true
	}
	for _, cue := range generalCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
