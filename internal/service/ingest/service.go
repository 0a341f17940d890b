package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/zhouzirui/paper-tribunal/backend/internal/analysis/language"
	"github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
)

var (
	ErrEmptyDocument       = errors.New("document is empty")
	ErrDocumentTooShort    = errors.New("paper text must be at least 100 characters")
	ErrUnsupportedLanguage = errors.New("unsupported paper language")
)

const (
	minChars        = 100
	defaultMaxChars = 12000
)

// Service normalizes and validates raw paper text before a session is
// created. Ingestion failures are the only session-start errors surfaced
// to callers.
type Service struct {
	maxChars int
}

// NewService builds an ingestor. maxChars bounds the normalized text; zero
// or negative selects the default.
func NewService(maxChars int) *Service {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Service{maxChars: maxChars}
}

// Ingest validates raw text and produces the normalized paper the
// tribunal reviews.
func (s *Service) Ingest(title, raw string) (session.Paper, error) {
	text := normalize(raw)
	if text == "" {
		return session.Paper{}, ErrEmptyDocument
	}
	if len([]rune(text)) < minChars {
		return session.Paper{}, ErrDocumentTooShort
	}

	det := language.Detect(text)
	if !det.Supported() {
		return session.Paper{}, fmt.Errorf("%w: looks like %s", ErrUnsupportedLanguage, det.Name)
	}

	text = truncate(text, s.maxChars)

	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled Paper"
	}

	return session.Paper{
		Title:    title,
		Text:     text,
		Language: string(det.Code),
	}, nil
}

// normalize unifies newlines, drops control characters and collapses
// excess blank lines.
func normalize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	out := strings.Join(lines, "\n")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

// truncate cuts text at max runes, backing up to the previous word
// boundary when one is close.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := runes[:max]
	if idx := lastSpace(cut); idx > max-200 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(string(cut))
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
