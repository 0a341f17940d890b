package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
)

// Offline is the canned generator used when no Ark credentials are
// configured. Sessions still run end to end: every reviewer returns a
// deterministic placeholder analysis so the orchestration, scoring and
// commit paths stay exercisable without a model.
type Offline struct{}

// NewOffline returns the canned generator.
func NewOffline() *Offline {
	return &Offline{}
}

// AnalyzePaper returns a deterministic placeholder analysis for the
// reviewer: one minor concern noting that no model reviewed the paper.
func (o *Offline) AnalyzePaper(_ context.Context, profile review.Profile, paper sessionmodel.Paper) (review.Analysis, error) {
	concern := review.Concern{
		Title:    fmt.Sprintf("%s review unavailable without a configured model", profile.Name),
		Evidence: fmt.Sprintf("Offline mode: %q was not examined for %s.", paper.Title, strings.Join(profile.Expertise, ", ")),
		Severity: review.MinorIssue,
		Reviewer: profile.Key,
	}
	return review.Analysis{
		Reviewer:   profile.Key,
		Narrative:  fmt.Sprintf("%s could not examine the paper: the tribunal is running without a reasoning backend.", profile.Name),
		Concerns:   []review.Concern{concern},
		Severity:   review.MinorIssue,
		Confidence: 10,
	}, nil
}

// OpeningStatement returns a fixed in-character placeholder.
func (o *Offline) OpeningStatement(_ context.Context, profile review.Profile, _ review.Analysis) (string, error) {
	return fmt.Sprintf("%s notes for the record that no substantive review was possible in offline mode.", profile.Name), nil
}

// DebateReply returns a fixed in-character placeholder.
func (o *Offline) DebateReply(_ context.Context, profile review.Profile, _ []sessionmodel.Turn, _ string) (string, error) {
	return fmt.Sprintf("%s cannot engage with that point without a reasoning backend.", profile.Name), nil
}

// VerdictNarrative returns a templated closing narration.
func (o *Offline) VerdictNarrative(_ context.Context, verdict review.Verdict) (string, string, error) {
	summary := fmt.Sprintf(
		"The tribunal concluded with a score of %d out of 100, with %d concerns raised of which %d were critical.",
		verdict.Score, verdict.TotalConcerns, verdict.CriticalCount,
	)
	return summary, "", nil
}
