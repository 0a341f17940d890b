package review

import "strings"

// Reviewer identifies one of the four fixed tribunal critics.
type Reviewer string

const (
	Skeptic       Reviewer = "skeptic"
	Statistician  Reviewer = "statistician"
	Methodologist Reviewer = "methodologist"
	Ethicist      Reviewer = "ethicist"
)

// UserSpeaker is the transcript speaker key for the human participant.
const UserSpeaker = "user"

// CanonicalOrder returns the reviewers in their fixed declaration order.
// Every fan-in, transcript listing and verdict ranking follows this order,
// never completion order.
func CanonicalOrder() []Reviewer {
	return []Reviewer{Skeptic, Statistician, Methodologist, Ethicist}
}

// Rank returns the reviewer's position in the canonical order. Unknown
// reviewers sort after all known ones.
func (r Reviewer) Rank() int {
	switch r {
	case Skeptic:
		return 0
	case Statistician:
		return 1
	case Methodologist:
		return 2
	case Ethicist:
		return 3
	default:
		return 4
	}
}

// Valid reports whether r is one of the four tribunal reviewers.
func (r Reviewer) Valid() bool {
	return r.Rank() < 4
}

// ParseReviewer normalizes a raw key into a Reviewer.
func ParseReviewer(raw string) (Reviewer, bool) {
	r := Reviewer(strings.ToLower(strings.TrimSpace(raw)))
	if r.Valid() {
		return r, true
	}
	return "", false
}

// Severity grades how damaging a concern is. The set is closed and totally
// ordered; Rank drives both verdict scoring and issue sorting.
type Severity string

const (
	FatalFlaw      Severity = "fatal_flaw"
	SeriousConcern Severity = "serious_concern"
	MinorIssue     Severity = "minor_issue"
	Acceptable     Severity = "acceptable"
	Unknown        Severity = "unknown"
)

// Rank returns the severity's position in the total order, higher is worse.
func (s Severity) Rank() int {
	switch s {
	case FatalFlaw:
		return 4
	case SeriousConcern:
		return 3
	case MinorIssue:
		return 2
	case Acceptable:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity normalizes a raw enum string into a Severity.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case FatalFlaw, SeriousConcern, MinorIssue, Acceptable, Unknown:
		return s, true
	}
	return "", false
}

// Concern is a single issue a reviewer raised against the paper.
type Concern struct {
	Title    string   `json:"title"`
	Evidence string   `json:"evidence,omitempty"`
	Severity Severity `json:"severity"`
	Reviewer Reviewer `json:"reviewer"`
}

// Analysis holds one reviewer's structured take on the paper. Written once
// during the analyzing phase; a failed reviewer gets the degraded form
// (severity unknown, confidence 0, no concerns).
type Analysis struct {
	Reviewer   Reviewer  `json:"reviewer"`
	Narrative  string    `json:"narrative"`
	Concerns   []Concern `json:"concerns"`
	Severity   Severity  `json:"severity"`
	Confidence int       `json:"confidence"`
	Degraded   bool      `json:"degraded,omitempty"`
}

// DegradedAnalysis builds the placeholder entry recorded when a reviewer's
// analysis call fails or times out.
func DegradedAnalysis(r Reviewer) Analysis {
	return Analysis{
		Reviewer:   r,
		Severity:   Unknown,
		Confidence: 0,
		Concerns:   []Concern{},
		Degraded:   true,
	}
}
