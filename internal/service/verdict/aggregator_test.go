package verdict

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
	sessionstore "github.com/zhouzirui/paper-tribunal/backend/internal/service/session"
)

type fakeNarrator struct {
	fail  bool
	calls int
}

func (f *fakeNarrator) VerdictNarrative(_ context.Context, v review.Verdict) (string, string, error) {
	f.calls++
	if f.fail {
		return "", "", errors.New("model failure")
	}
	return fmt.Sprintf("narrated %d", v.Score), "NARRATED REC", nil
}

func newVerdictSession(t *testing.T, concerns map[review.Reviewer][]review.Concern) (*sessionstore.Store, string) {
	t.Helper()
	store := sessionstore.NewStore(time.Hour, time.Hour)
	t.Cleanup(store.Close)

	sess := store.Create(sessionmodel.Paper{Title: "t", Text: "body", Language: "en"})
	analyses := make(map[review.Reviewer]review.Analysis, 4)
	for _, r := range review.CanonicalOrder() {
		analyses[r] = review.Analysis{Reviewer: r, Severity: review.Acceptable, Confidence: 70, Concerns: concerns[r]}
	}
	if err := store.PutAnalyses(sess.ID, analyses); err != nil {
		t.Fatalf("put analyses: %v", err)
	}
	if _, err := store.Transition(sess.ID, sessionmodel.StatusCreated, sessionmodel.StatusAnalyzing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := store.Transition(sess.ID, sessionmodel.StatusAnalyzing, sessionmodel.StatusDebating); err != nil {
		t.Fatalf("transition: %v", err)
	}
	return store, sess.ID
}

func concern(reviewer review.Reviewer, title string, severity review.Severity) review.Concern {
	return review.Concern{Title: title, Severity: severity, Reviewer: reviewer}
}

func TestFinalizeZeroConcernsScores100(t *testing.T) {
	store, id := newVerdictSession(t, nil)
	a := NewAggregator(store, nil, time.Second)

	v, err := a.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Score != 100 || v.TotalConcerns != 0 || v.CriticalCount != 0 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if v.Recommendation != "ACCEPT" {
		t.Fatalf("expected ACCEPT, got %q", v.Recommendation)
	}
}

func TestFinalizeReferenceFixtureScores42(t *testing.T) {
	// 3 fatal + 2 serious + 1 minor: 100 - 45 - 10 - 3 = 42.
	store, id := newVerdictSession(t, map[review.Reviewer][]review.Concern{
		review.Skeptic: {
			concern(review.Skeptic, "reverse causation unaddressed", review.FatalFlaw),
			concern(review.Skeptic, "cohort self-selected", review.SeriousConcern),
		},
		review.Statistician: {
			concern(review.Statistician, "sample hopelessly underpowered", review.FatalFlaw),
			concern(review.Statistician, "p-values uncorrected", review.SeriousConcern),
		},
		review.Methodologist: {
			concern(review.Methodologist, "no control group", review.FatalFlaw),
			concern(review.Methodologist, "protocol deviations unlogged", review.MinorIssue),
		},
	})
	a := NewAggregator(store, nil, time.Second)

	v, err := a.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Score != 42 {
		t.Fatalf("expected reference score 42, got %d", v.Score)
	}
	if v.TotalConcerns != 6 {
		t.Fatalf("expected 6 total concerns, got %d", v.TotalConcerns)
	}
	if v.CriticalCount != 5 {
		t.Fatalf("expected 5 critical-tier concerns, got %d", v.CriticalCount)
	}
	if v.Recommendation != "MAJOR REVISION" {
		t.Fatalf("expected MAJOR REVISION, got %q", v.Recommendation)
	}
}

func TestFinalizeCriticalIssuesSortedBySeverityThenReviewer(t *testing.T) {
	store, id := newVerdictSession(t, map[review.Reviewer][]review.Concern{
		review.Skeptic:       {concern(review.Skeptic, "serious from skeptic", review.SeriousConcern)},
		review.Statistician:  {concern(review.Statistician, "fatal from statistician", review.FatalFlaw)},
		review.Methodologist: {concern(review.Methodologist, "minor from methodologist", review.MinorIssue)},
		review.Ethicist:      {concern(review.Ethicist, "fatal from ethicist", review.FatalFlaw)},
	})
	a := NewAggregator(store, nil, time.Second)

	v, err := a.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, issue := range v.CriticalIssues {
		got = append(got, issue.Title)
	}
	want := []string{"fatal from statistician", "fatal from ethicist", "serious from skeptic"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("wrong critical order:\n got %v\nwant %v", got, want)
	}
}

func TestFinalizeDeduplicatesByNormalizedTitle(t *testing.T) {
	store, id := newVerdictSession(t, map[review.Reviewer][]review.Concern{
		review.Skeptic:      {concern(review.Skeptic, "No Control Group.", review.FatalFlaw)},
		review.Statistician: {concern(review.Statistician, "no  control   group", review.SeriousConcern)},
	})
	a := NewAggregator(store, nil, time.Second)

	v, err := a.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.TotalConcerns != 1 {
		t.Fatalf("duplicate concern survived: %+v", v.CriticalIssues)
	}
	// First occurrence wins: the Skeptic's fatal form.
	if v.CriticalIssues[0].Reviewer != review.Skeptic || v.CriticalIssues[0].Severity != review.FatalFlaw {
		t.Fatalf("wrong surviving concern: %+v", v.CriticalIssues[0])
	}
	if v.Score != 85 {
		t.Fatalf("expected 85, got %d", v.Score)
	}
}

func TestFinalizeIncludesDebateTurnConcerns(t *testing.T) {
	store, id := newVerdictSession(t, nil)
	if _, _, err := store.AppendTurn(id, sessionmodel.Turn{
		Speaker:  string(review.Statistician),
		Text:     "pressed on this in debate",
		Concerns: []review.Concern{concern(review.Statistician, "effect size inflated", review.SeriousConcern)},
	}); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	a := NewAggregator(store, nil, time.Second)

	v, err := a.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.TotalConcerns != 1 || v.Score != 95 {
		t.Fatalf("debate concern not aggregated: %+v", v)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	narrator := &fakeNarrator{}
	store, id := newVerdictSession(t, map[review.Reviewer][]review.Concern{
		review.Skeptic: {concern(review.Skeptic, "x", review.MinorIssue)},
	})
	a := NewAggregator(store, narrator, time.Second)

	first, err := a.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := a.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("verdicts differ:\n%+v\n%+v", first, second)
	}
	if first.Digest() != second.Digest() {
		t.Fatal("verdict digests differ across calls")
	}
	if narrator.calls != 1 {
		t.Fatalf("narrator invoked %d times", narrator.calls)
	}
}

func TestFinalizeRejectsWrongStatus(t *testing.T) {
	store := sessionstore.NewStore(time.Hour, time.Hour)
	t.Cleanup(store.Close)
	sess := store.Create(sessionmodel.Paper{Title: "t", Text: "body"})

	a := NewAggregator(store, nil, time.Second)
	if _, err := a.Finalize(context.Background(), sess.ID); !errors.Is(err, sessionstore.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFinalizeNarratorFailureUsesFallbackTiers(t *testing.T) {
	store, id := newVerdictSession(t, map[review.Reviewer][]review.Concern{
		review.Methodologist: {
			concern(review.Methodologist, "a", review.FatalFlaw),
			concern(review.Methodologist, "b", review.FatalFlaw),
			concern(review.Methodologist, "c", review.FatalFlaw),
			concern(review.Methodologist, "d", review.FatalFlaw),
			concern(review.Methodologist, "e", review.FatalFlaw),
			concern(review.Methodologist, "f", review.FatalFlaw),
		},
	})
	a := NewAggregator(store, &fakeNarrator{fail: true}, time.Second)

	v, err := a.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 100 - 90 = 10: REJECT tier.
	if v.Score != 10 || v.Recommendation != "REJECT" {
		t.Fatalf("unexpected fallback verdict: score=%d rec=%q", v.Score, v.Recommendation)
	}
	if v.Summary == "" {
		t.Fatal("fallback summary missing")
	}
}

func TestRecommendationTierBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, "REJECT"},
		{24, "REJECT"},
		{25, "MAJOR REVISION"},
		{49, "MAJOR REVISION"},
		{50, "MINOR REVISION"},
		{74, "MINOR REVISION"},
		{75, "ACCEPT"},
		{100, "ACCEPT"},
	}
	for _, tc := range cases {
		if got := recommendationTier(tc.score); got != tc.want {
			t.Fatalf("score %d: expected %q, got %q", tc.score, tc.want, got)
		}
	}
}
