package debate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
	sessionstore "github.com/zhouzirui/paper-tribunal/backend/internal/service/session"
)

type fakeGenerator struct {
	fail   map[review.Reviewer]bool
	delays map[review.Reviewer]time.Duration
	reply  func(profile review.Profile, userText string) string
}

func (f *fakeGenerator) wait(ctx context.Context, key review.Reviewer) error {
	if d := f.delays[key]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail[key] {
		return errors.New("model failure")
	}
	return nil
}

func (f *fakeGenerator) OpeningStatement(ctx context.Context, profile review.Profile, _ review.Analysis) (string, error) {
	if err := f.wait(ctx, profile.Key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s opening", profile.Key), nil
}

func (f *fakeGenerator) DebateReply(ctx context.Context, profile review.Profile, _ []sessionmodel.Turn, userText string) (string, error) {
	if err := f.wait(ctx, profile.Key); err != nil {
		return "", err
	}
	if f.reply != nil {
		return f.reply(profile, userText), nil
	}
	return fmt.Sprintf("%s reply", profile.Key), nil
}

type recordingInterrupter struct {
	store *sessionstore.Store
	calls int
}

func (r *recordingInterrupter) Interrupt(sessionID string) error {
	r.calls++
	_, err := r.store.Interrupt(sessionID)
	return err
}

func newDebateSession(t *testing.T) (*sessionstore.Store, string) {
	t.Helper()
	store := sessionstore.NewStore(time.Hour, time.Hour)
	t.Cleanup(store.Close)

	sess := store.Create(sessionmodel.Paper{Title: "t", Text: "body", Language: "en"})
	analyses := make(map[review.Reviewer]review.Analysis, 4)
	for _, r := range review.CanonicalOrder() {
		analyses[r] = review.Analysis{Reviewer: r, Severity: review.Acceptable, Confidence: 70}
	}
	if err := store.PutAnalyses(sess.ID, analyses); err != nil {
		t.Fatalf("put analyses: %v", err)
	}
	return store, sess.ID
}

func TestOpeningStatementsCanonicalOrderDespiteCompletionOrder(t *testing.T) {
	store, id := newDebateSession(t)
	// The Skeptic finishes last; order must not change.
	gen := &fakeGenerator{delays: map[review.Reviewer]time.Duration{
		review.Skeptic:      60 * time.Millisecond,
		review.Statistician: 10 * time.Millisecond,
	}}
	e := NewEngine(store, gen, review.Roster(), nil, nil, time.Second)

	turns, err := e.OpeningStatements(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected 4 openings, got %d", len(turns))
	}
	for i, want := range review.CanonicalOrder() {
		if turns[i].Speaker != string(want) {
			t.Fatalf("position %d: expected %s, got %s", i, want, turns[i].Speaker)
		}
		if turns[i].Seq != i+1 {
			t.Fatalf("position %d: expected seq %d, got %d", i, i+1, turns[i].Seq)
		}
		if turns[i].Round != 1 {
			t.Fatalf("opening round must be 1, got %d", turns[i].Round)
		}
	}

	rounds, err := store.Rounds(id)
	if err != nil || rounds != 1 {
		t.Fatalf("expected 1 completed round, got %d err=%v", rounds, err)
	}
}

func TestOpeningStatementsSkipFailedReviewer(t *testing.T) {
	store, id := newDebateSession(t)
	gen := &fakeGenerator{fail: map[review.Reviewer]bool{review.Statistician: true}}
	e := NewEngine(store, gen, review.Roster(), nil, nil, time.Second)

	turns, err := e.OpeningStatements(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 openings, got %d", len(turns))
	}
	for _, turn := range turns {
		if turn.Speaker == string(review.Statistician) {
			t.Fatal("failed reviewer must be skipped")
		}
	}
}

func TestOpeningStatementsRequireAnalyses(t *testing.T) {
	store := sessionstore.NewStore(time.Hour, time.Hour)
	t.Cleanup(store.Close)
	sess := store.Create(sessionmodel.Paper{Title: "t", Text: "body"})

	e := NewEngine(store, &fakeGenerator{}, review.Roster(), nil, nil, time.Second)
	if _, err := e.OpeningStatements(context.Background(), sess.ID); !errors.Is(err, ErrNoAnalyses) {
		t.Fatalf("expected ErrNoAnalyses, got %v", err)
	}
}

func TestRespondAddressedSubsetInCanonicalOrder(t *testing.T) {
	store, id := newDebateSession(t)
	// The Ethicist answers first, the Skeptic last; fan-in must still be
	// canonical.
	gen := &fakeGenerator{delays: map[review.Reviewer]time.Duration{
		review.Skeptic: 50 * time.Millisecond,
	}}
	policy := func(string, []review.Profile) []review.Reviewer {
		return []review.Reviewer{review.Ethicist, review.Skeptic}
	}
	e := NewEngine(store, gen, review.Roster(), policy, nil, time.Second)

	turns, err := e.Respond(context.Background(), id, "who funded this?", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(turns))
	}
	if turns[0].Speaker != string(review.Skeptic) || turns[1].Speaker != string(review.Ethicist) {
		t.Fatalf("expected canonical order [skeptic ethicist], got [%s %s]", turns[0].Speaker, turns[1].Speaker)
	}
}

func TestRespondEmptyPolicyFallsBackToFullBench(t *testing.T) {
	store, id := newDebateSession(t)
	policy := func(string, []review.Profile) []review.Reviewer { return nil }
	e := NewEngine(store, &fakeGenerator{}, review.Roster(), policy, nil, time.Second)

	turns, err := e.Respond(context.Background(), id, "hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected full bench, got %d replies", len(turns))
	}
}

func TestRespondAppendsUserTurnFirst(t *testing.T) {
	store, id := newDebateSession(t)
	policy := func(string, []review.Profile) []review.Reviewer {
		return []review.Reviewer{review.Skeptic}
	}
	e := NewEngine(store, &fakeGenerator{}, review.Roster(), policy, nil, time.Second)

	if _, err := e.Respond(context.Background(), id, "my defense", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transcript, err := store.Transcript(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transcript) != 2 {
		t.Fatalf("expected user turn + reply, got %d turns", len(transcript))
	}
	if transcript[0].Speaker != review.UserSpeaker || transcript[0].Text != "my defense" {
		t.Fatalf("first turn must be the user's: %+v", transcript[0])
	}
}

func TestRespondInterruptRequestedCallsInterrupter(t *testing.T) {
	store, id := newDebateSession(t)
	interrupter := &recordingInterrupter{store: store}
	policy := func(string, []review.Profile) []review.Reviewer {
		return []review.Reviewer{review.Skeptic}
	}
	e := NewEngine(store, &fakeGenerator{}, review.Roster(), policy, interrupter, time.Second)

	turns, err := e.Respond(context.Background(), id, "stop, let me object", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if interrupter.calls != 1 {
		t.Fatalf("expected 1 interrupt call, got %d", interrupter.calls)
	}
	// The reply is generated at the post-interrupt epoch and survives.
	if len(turns) != 1 || turns[0].Epoch != 1 {
		t.Fatalf("expected surviving reply at epoch 1, got %+v", turns)
	}
}

func TestRespondDropsRepliesFromStaleEpoch(t *testing.T) {
	store, id := newDebateSession(t)
	policy := func(string, []review.Profile) []review.Reviewer {
		return []review.Reviewer{review.Skeptic, review.Statistician}
	}
	gen := &fakeGenerator{delays: map[review.Reviewer]time.Duration{
		review.Skeptic:      80 * time.Millisecond,
		review.Statistician: 80 * time.Millisecond,
	}}
	e := NewEngine(store, gen, review.Roster(), policy, nil, time.Second)

	done := make(chan []sessionmodel.Turn, 1)
	go func() {
		turns, err := e.Respond(context.Background(), id, "question?", false)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- turns
	}()

	// Interrupt while both replies are still generating.
	time.Sleep(20 * time.Millisecond)
	if _, err := store.Interrupt(id); err != nil {
		t.Fatalf("interrupt failed: %v", err)
	}

	turns := <-done
	if len(turns) != 0 {
		t.Fatalf("stale replies must be discarded, got %d", len(turns))
	}

	transcript, err := store.Transcript(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, turn := range transcript {
		if turn.Speaker != review.UserSpeaker {
			t.Fatalf("stale reviewer turn reached the transcript: %+v", turn)
		}
	}
}

func TestRespondHarvestsConcernsFromReplyText(t *testing.T) {
	store, id := newDebateSession(t)
	policy := func(string, []review.Profile) []review.Reviewer {
		return []review.Reviewer{review.Statistician}
	}
	gen := &fakeGenerator{reply: func(review.Profile, string) string {
		return "I remain unconvinced.\n- SERIOUS_CONCERN the sample is underpowered\n  n=12 cannot support this claim"
	}}
	e := NewEngine(store, gen, review.Roster(), policy, nil, time.Second)

	turns, err := e.Respond(context.Background(), id, "the statistics hold up", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(turns))
	}
	if len(turns[0].Concerns) != 1 {
		t.Fatalf("expected 1 harvested concern, got %+v", turns[0].Concerns)
	}
	c := turns[0].Concerns[0]
	if c.Severity != review.SeriousConcern || c.Reviewer != review.Statistician {
		t.Fatalf("unexpected concern: %+v", c)
	}
}
