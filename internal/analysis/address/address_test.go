package address

import (
	"testing"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
)

func TestResolveDirectMention(t *testing.T) {
	got := Resolve("Skeptic, do you buy the causal story here", review.Roster())
	if len(got) != 1 || got[0] != review.Skeptic {
		t.Fatalf("expected [skeptic], got %v", got)
	}
}

func TestResolveDirectMentionIsExclusive(t *testing.T) {
	// "statistic" names the Statistician; "bias" would otherwise pull in
	// the Skeptic and Ethicist via keywords, but direct mention wins.
	got := Resolve("is that statistic affected by bias", review.Roster())
	if len(got) != 1 || got[0] != review.Statistician {
		t.Fatalf("expected [statistician], got %v", got)
	}
}

func TestResolveKeywordRouting(t *testing.T) {
	got := Resolve("the sample seems tiny and the p-value is suspicious", review.Roster())
	if len(got) != 1 || got[0] != review.Statistician {
		t.Fatalf("expected [statistician], got %v", got)
	}

	got = Resolve("who funded this and was consent obtained", review.Roster())
	if len(got) != 1 || got[0] != review.Ethicist {
		t.Fatalf("expected [ethicist], got %v", got)
	}
}

func TestResolveKeywordRoutingMultiple(t *testing.T) {
	got := Resolve("the confound interacts with the randomization protocol", review.Roster())
	if len(got) != 2 {
		t.Fatalf("expected 2 reviewers, got %v", got)
	}
	if got[0] != review.Skeptic || got[1] != review.Methodologist {
		t.Fatalf("expected canonical order [skeptic methodologist], got %v", got)
	}
}

func TestResolveQuestionAddressesBench(t *testing.T) {
	got := Resolve("so is the paper any good?", review.Roster())
	if len(got) != 4 {
		t.Fatalf("expected full bench, got %v", got)
	}
	for i, want := range review.CanonicalOrder() {
		if got[i] != want {
			t.Fatalf("expected canonical order, got %v", got)
		}
	}
}

func TestResolveNoMatchReturnsEmpty(t *testing.T) {
	got := Resolve("I will read the appendix tonight", review.Roster())
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestResolveDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		got := Resolve("Methodologist and Ethicist, weigh in", review.Roster())
		if len(got) != 2 || got[0] != review.Methodologist || got[1] != review.Ethicist {
			t.Fatalf("iteration %d: expected [methodologist ethicist], got %v", i, got)
		}
	}
}
