package verdict

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
	sessionstore "github.com/zhouzirui/paper-tribunal/backend/internal/service/session"
)

// Narrator produces the verdict's spoken summary and recommendation from
// the aggregated structure. Its failure is never fatal: the deterministic
// fallback text applies instead.
type Narrator interface {
	VerdictNarrative(ctx context.Context, verdict review.Verdict) (summary, recommendation string, err error)
}

// Severity penalties subtracted from the starting score of 100.
var penalties = map[review.Severity]int{
	review.FatalFlaw:      15,
	review.SeriousConcern: 5,
	review.MinorIssue:     3,
	review.Acceptable:     0,
	review.Unknown:        0,
}

const defaultTimeout = 30 * time.Second

// Aggregator folds all reviewer output into the final verdict, exactly
// once per session. The first Finalize computes and stores; every later
// call returns the stored verdict unchanged.
type Aggregator struct {
	store    *sessionstore.Store
	narrator Narrator
	timeout  time.Duration
}

// NewAggregator builds the aggregator. narrator may be nil: the fallback
// narrative always applies then.
func NewAggregator(store *sessionstore.Store, narrator Narrator, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Aggregator{store: store, narrator: narrator, timeout: timeout}
}

// Finalize computes the verdict for the session, or returns the cached
// one. The session moves debating -> awaiting_verdict on the first call;
// any other starting status is an invalid transition.
func (a *Aggregator) Finalize(ctx context.Context, sessionID string) (review.Verdict, error) {
	if cached, ok, err := a.store.Verdict(sessionID); err != nil {
		return review.Verdict{}, err
	} else if ok {
		return cached, nil
	}

	if _, err := a.store.Transition(sessionID, sessionmodel.StatusDebating, sessionmodel.StatusAwaitingVerdict); err != nil {
		return review.Verdict{}, err
	}

	concerns, err := a.collect(sessionID)
	if err != nil {
		return review.Verdict{}, err
	}
	deduped := dedupe(concerns)

	score := 100
	for _, c := range deduped {
		score -= penalties[c.Severity]
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	critical := criticalIssues(deduped)
	rounds, err := a.store.Rounds(sessionID)
	if err != nil {
		return review.Verdict{}, err
	}

	v := review.Verdict{
		SessionID:      sessionID,
		Score:          score,
		CriticalIssues: critical,
		TotalConcerns:  len(deduped),
		CriticalCount:  len(critical),
		DebateRounds:   rounds,
		CreatedAt:      time.Now(),
	}
	v.Summary, v.Recommendation = a.narrate(ctx, v)

	if err := a.store.PutVerdict(sessionID, v); err != nil {
		// Lost a race with a concurrent Finalize; the stored verdict wins.
		if stored, ok, getErr := a.store.Verdict(sessionID); getErr == nil && ok {
			return stored, nil
		}
		return review.Verdict{}, err
	}
	return v, nil
}

// collect gathers concerns from every analysis in canonical reviewer
// order, then from concern-bearing debate turns in sequence order. That
// traversal order is what makes "first occurrence wins" deterministic.
func (a *Aggregator) collect(sessionID string) ([]review.Concern, error) {
	analyses, err := a.store.Analyses(sessionID)
	if err != nil {
		return nil, err
	}

	var out []review.Concern
	for _, r := range review.CanonicalOrder() {
		analysis, ok := analyses[r]
		if !ok {
			continue
		}
		out = append(out, analysis.Concerns...)
	}

	transcript, err := a.store.Transcript(sessionID)
	if err != nil {
		return nil, err
	}
	for _, turn := range transcript {
		out = append(out, turn.Concerns...)
	}
	return out, nil
}

// dedupe drops concerns whose normalized title was already seen.
func dedupe(concerns []review.Concern) []review.Concern {
	seen := make(map[string]struct{}, len(concerns))
	out := make([]review.Concern, 0, len(concerns))
	for _, c := range concerns {
		key := normalizeTitle(c.Title)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// normalizeTitle lowercases, collapses whitespace and trims trailing
// punctuation so restatements of the same concern collapse.
func normalizeTitle(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	joined := strings.Join(fields, " ")
	return strings.TrimRight(joined, ".,;:!?")
}

// criticalIssues filters to severity >= serious_concern, sorted by
// severity descending then canonical reviewer order.
func criticalIssues(concerns []review.Concern) []review.Concern {
	critical := make([]review.Concern, 0, len(concerns))
	for _, c := range concerns {
		if c.Severity.AtLeast(review.SeriousConcern) {
			critical = append(critical, c)
		}
	}
	sort.SliceStable(critical, func(i, j int) bool {
		if critical[i].Severity.Rank() != critical[j].Severity.Rank() {
			return critical[i].Severity.Rank() > critical[j].Severity.Rank()
		}
		return critical[i].Reviewer.Rank() < critical[j].Reviewer.Rank()
	})
	return critical
}

func (a *Aggregator) narrate(ctx context.Context, v review.Verdict) (summary, recommendation string) {
	if a.narrator != nil {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		s, r, err := a.narrator.VerdictNarrative(callCtx, v)
		if err == nil && strings.TrimSpace(s) != "" {
			if strings.TrimSpace(r) == "" {
				r = recommendationTier(v.Score)
			}
			return s, r
		}
		if err != nil {
			log.Printf("[verdict] session=%s narrative fallback: %v", v.SessionID, err)
		}
	}
	return fallbackSummary(v), recommendationTier(v.Score)
}

// recommendationTier maps the score onto the verdict recommendation.
func recommendationTier(score int) string {
	switch {
	case score < 25:
		return "REJECT"
	case score < 50:
		return "MAJOR REVISION"
	case score < 75:
		return "MINOR REVISION"
	default:
		return "ACCEPT"
	}
}

func fallbackSummary(v review.Verdict) string {
	return fmt.Sprintf(
		"The tribunal scored this paper %d/100 after %d debate rounds, raising %d distinct concerns of which %d are critical.",
		v.Score, v.DebateRounds, v.TotalConcerns, v.CriticalCount,
	)
}
