package rubric

import (
	"regexp"
	"strings"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
)

// Reviewers rate their findings with marker tokens inside free text. The
// markers are checked in priority order; the first one present anywhere in
// the text decides. Chinese forms cover zh-language sessions.
var severityMarkers = []struct {
	severity review.Severity
	tokens   []string
}{
	{review.FatalFlaw, []string{"FATAL_FLAW", "致命缺陷"}},
	{review.SeriousConcern, []string{"SERIOUS_CONCERN", "严重问题"}},
	{review.MinorIssue, []string{"MINOR_ISSUE", "次要问题"}},
	{review.Acceptable, []string{"ACCEPTABLE", "可接受"}},
}

var confidencePattern = regexp.MustCompile(`confidence[:\s]*(\d+)`)

// ParseSeverity scans reviewer text for the highest-priority severity
// marker. Text with no marker is Unknown.
func ParseSeverity(text string) review.Severity {
	upper := strings.ToUpper(text)
	for _, m := range severityMarkers {
		for _, token := range m.tokens {
			if strings.Contains(upper, token) {
				return m.severity
			}
		}
	}
	return review.Unknown
}

// ParseConfidence extracts a "confidence: N" figure, clamped to 0-100.
// Absent confidence defaults to 50.
func ParseConfidence(text string) int {
	match := confidencePattern.FindStringSubmatch(strings.ToLower(text))
	if match == nil {
		return 50
	}
	n := 0
	for _, r := range match[1] {
		n = n*10 + int(r-'0')
		if n > 100 {
			return 100
		}
	}
	return n
}

// ExtractConcerns pulls bulleted concerns out of reviewer text. A line
// starting with "-", "*" or a single digit and "." opens a concern whose
// title is the rest of the line; subsequent non-empty unbulleted lines
// accumulate as its evidence. Concern severity is the marker found in the
// concern's own text, Unknown when absent.
func ExtractConcerns(text string, reviewer review.Reviewer) []review.Concern {
	var concerns []review.Concern
	var current *review.Concern

	flush := func() {
		if current == nil {
			return
		}
		current.Evidence = strings.TrimSpace(current.Evidence)
		concerns = append(concerns, *current)
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if isBullet(line) {
			flush()
			title := strings.TrimLeft(line, "-*0123456789. ")
			current = &review.Concern{
				Title:    title,
				Severity: ParseSeverity(title),
				Reviewer: reviewer,
			}
			continue
		}
		if current != nil && line != "" {
			current.Evidence += line + " "
			if current.Severity == review.Unknown {
				current.Severity = ParseSeverity(line)
			}
		}
	}
	flush()

	return concerns
}

// ParseAnalysis assembles a structured analysis from raw reviewer output.
// Concerns without their own severity marker inherit the reviewer's
// overall rating.
func ParseAnalysis(reviewer review.Reviewer, raw string) review.Analysis {
	severity := ParseSeverity(raw)
	concerns := ExtractConcerns(raw, reviewer)
	for i := range concerns {
		if concerns[i].Severity == review.Unknown {
			concerns[i].Severity = severity
		}
	}
	return review.Analysis{
		Reviewer:   reviewer,
		Narrative:  raw,
		Concerns:   concerns,
		Severity:   severity,
		Confidence: ParseConfidence(raw),
	}
}

func isBullet(line string) bool {
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return true
	}
	if len(line) >= 2 && line[0] >= '0' && line[0] <= '9' && line[1] == '.' {
		return true
	}
	return false
}
