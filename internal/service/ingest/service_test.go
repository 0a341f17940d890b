package ingest

import (
	"errors"
	"strings"
	"testing"
)

func paperText() string {
	return strings.Repeat("We measured the effect of the intervention on the primary outcome across sites. ", 3)
}

func TestIngestValidPaper(t *testing.T) {
	svc := NewService(0)
	paper, err := svc.Ingest("  Sleep and Memory  ", paperText())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paper.Title != "Sleep and Memory" {
		t.Fatalf("title not trimmed: %q", paper.Title)
	}
	if paper.Language != "en" {
		t.Fatalf("expected en, got %s", paper.Language)
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	svc := NewService(0)
	if _, err := svc.Ingest("t", "   \n\n  "); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestIngestTooShort(t *testing.T) {
	svc := NewService(0)
	if _, err := svc.Ingest("t", "only a sentence"); !errors.Is(err, ErrDocumentTooShort) {
		t.Fatalf("expected ErrDocumentTooShort, got %v", err)
	}
}

func TestIngestUnsupportedLanguage(t *testing.T) {
	svc := NewService(0)
	text := strings.Repeat("Исследование показало значительное улучшение показателей в экспериментальной группе. ", 3)
	_, err := svc.Ingest("t", text)
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestIngestDefaultTitle(t *testing.T) {
	svc := NewService(0)
	paper, err := svc.Ingest("", paperText())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paper.Title != "Untitled Paper" {
		t.Fatalf("expected default title, got %q", paper.Title)
	}
}

func TestIngestNormalizesAndTruncates(t *testing.T) {
	svc := NewService(200)
	raw := "Intro\r\n\r\n\r\n\r\nBody " + strings.Repeat("word ", 100)
	paper, err := svc.Ingest("t", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(paper.Text, "\n\n\n") {
		t.Fatalf("blank lines not collapsed")
	}
	if strings.Contains(paper.Text, "\r") {
		t.Fatalf("carriage returns not removed")
	}
	if got := len([]rune(paper.Text)); got > 200 {
		t.Fatalf("text not truncated, %d runes", got)
	}
	if strings.HasSuffix(paper.Text, " ") {
		t.Fatalf("truncation left trailing space")
	}
}
