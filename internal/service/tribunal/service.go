package tribunal

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/ingest"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/memory"
	sessionstore "github.com/zhouzirui/paper-tribunal/backend/internal/service/session"
)

// ErrSessionConcluded rejects messages and interrupts sent to a session
// whose verdict is already in.
var ErrSessionConcluded = errors.New("session already concluded")

// ErrMemoryUnavailable rejects memory searches while the memory sink is
// disabled.
var ErrMemoryUnavailable = errors.New("memory service unavailable")

// Coordinator runs the four-way analysis barrier.
type Coordinator interface {
	Analyze(ctx context.Context, paper sessionmodel.Paper) map[review.Reviewer]review.Analysis
}

// Debater runs opening statements and addressed replies.
type Debater interface {
	OpeningStatements(ctx context.Context, sessionID string) ([]sessionmodel.Turn, error)
	Respond(ctx context.Context, sessionID, userText string, interruptRequested bool) ([]sessionmodel.Turn, error)
}

// Finalizer computes (or returns the cached) verdict.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID string) (review.Verdict, error)
}

// Committer dispatches the verdict to the durable sinks.
type Committer interface {
	Commit(sessionID, paperTitle string, verdict review.Verdict) review.CommitRecord
}

// Speech is the slice of the speech service the facade drives. A nil
// Speech runs every session text-only.
type Speech interface {
	EnqueueTurns(sessionID string, turns []sessionmodel.Turn) error
	EnqueueNarration(sessionID, text string) error
	Interrupt(sessionID string)
	Audio(sessionID string, seq int) ([]byte, bool)
	DropSession(sessionID string)
}

// MemorySearcher looks up past tribunal summaries.
type MemorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]memory.Record, error)
}

// Capabilities reports which optional backends came up at startup, for
// the health endpoint.
type Capabilities struct {
	AIOnline bool `json:"aiOnline"`
	Speech   bool `json:"speech"`
	Ledger   bool `json:"ledger"`
	Memory   bool `json:"memory"`
}

// StartResult is everything a freshly opened session hands back: the
// session snapshot, the four analyses and the opening statements.
type StartResult struct {
	Session  sessionmodel.Session                `json:"session"`
	Analyses map[review.Reviewer]review.Analysis `json:"analyses"`
	Turns    []sessionmodel.Turn                 `json:"turns"`
}

// Snapshot is the full read-side view of one session.
type Snapshot struct {
	Session    sessionmodel.Session                `json:"session"`
	Transcript []sessionmodel.Turn                 `json:"transcript"`
	Analyses   map[review.Reviewer]review.Analysis `json:"analyses,omitempty"`
	Verdict    *review.Verdict                     `json:"verdict,omitempty"`
}

// Service is the transport-agnostic orchestrator every handler calls
// into. It owns the session lifecycle; the collaborators own their own
// concurrency.
type Service struct {
	ingest      *ingest.Service
	store       *sessionstore.Store
	coordinator Coordinator
	debater     Debater
	finalizer   Finalizer
	committer   Committer
	speech      Speech
	memory      MemorySearcher
	bus         *Bus
	caps        Capabilities
}

// NewService wires the facade. speech and memorySearcher may be nil.
func NewService(
	ing *ingest.Service,
	store *sessionstore.Store,
	coordinator Coordinator,
	debater Debater,
	finalizer Finalizer,
	committer Committer,
	speech Speech,
	memorySearcher MemorySearcher,
	bus *Bus,
	caps Capabilities,
) *Service {
	if bus == nil {
		bus = NewBus()
	}
	return &Service{
		ingest:      ing,
		store:       store,
		coordinator: coordinator,
		debater:     debater,
		finalizer:   finalizer,
		committer:   committer,
		speech:      speech,
		memory:      memorySearcher,
		bus:         bus,
		caps:        caps,
	}
}

// Bus exposes the event feed for stream handlers.
func (s *Service) Bus() *Bus { return s.bus }

// Capabilities reports the degraded-mode flags decided at startup.
func (s *Service) Capabilities() Capabilities { return s.caps }

// StartSession ingests the paper, runs the analysis barrier and the
// opening statements, and leaves the session debating. Ingestion errors
// are the only fatal session-start errors; reviewer failures degrade.
func (s *Service) StartSession(ctx context.Context, title, raw string) (StartResult, error) {
	paper, err := s.ingest.Ingest(title, raw)
	if err != nil {
		return StartResult{}, err
	}

	sess := s.store.Create(paper)
	log.Printf("[tribunal] session=%s created title=%q language=%s", sess.ID, paper.Title, paper.Language)
	s.publishSession(sess)

	if _, err := s.store.Transition(sess.ID, sessionmodel.StatusCreated, sessionmodel.StatusAnalyzing); err != nil {
		return StartResult{}, err
	}

	analyses := s.coordinator.Analyze(ctx, paper)
	if err := s.store.PutAnalyses(sess.ID, analyses); err != nil {
		return StartResult{}, err
	}
	for _, r := range review.CanonicalOrder() {
		if analysis, ok := analyses[r]; ok {
			s.bus.Publish(Event{Type: EventAnalysis, SessionID: sess.ID, Payload: analysis})
		}
	}

	if _, err := s.store.Transition(sess.ID, sessionmodel.StatusAnalyzing, sessionmodel.StatusDebating); err != nil {
		return StartResult{}, err
	}

	turns, err := s.debater.OpeningStatements(ctx, sess.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("opening statements: %w", err)
	}
	s.dispatchTurns(sess.ID, turns)

	current, err := s.store.Get(sess.ID)
	if err != nil {
		return StartResult{}, err
	}
	s.publishSession(current)

	return StartResult{Session: current, Analyses: analyses, Turns: turns}, nil
}

// SendMessage appends one user message and returns the addressed
// reviewers' replies. Only debating sessions accept messages.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string, interrupt bool) ([]sessionmodel.Turn, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case sessionmodel.StatusDebating:
	case sessionmodel.StatusConcluded:
		return nil, ErrSessionConcluded
	default:
		return nil, fmt.Errorf("session is %s: %w", sess.Status, sessionstore.ErrInvalidTransition)
	}

	turns, err := s.debater.Respond(ctx, sessionID, text, interrupt)
	if err != nil {
		return nil, err
	}
	s.dispatchTurns(sessionID, turns)
	return turns, nil
}

// Interrupt cuts off the active speaker: epoch bump and bookkeeping in
// the store, then cancellation of in-flight synthesis. Everything queued
// before the bump is now stale and gets discarded at its checkpoints.
func (s *Service) Interrupt(ctx context.Context, sessionID string) error {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return err
	}
	if sess.Status == sessionmodel.StatusConcluded {
		return ErrSessionConcluded
	}

	epoch, err := s.store.Interrupt(sessionID)
	if err != nil {
		return err
	}
	if s.speech != nil {
		s.speech.Interrupt(sessionID)
	}
	log.Printf("[tribunal] session=%s interrupted epoch=%d", sessionID, epoch)

	if current, err := s.store.Get(sessionID); err == nil {
		s.publishSession(current)
	}
	return nil
}

// RequestVerdict finalizes the session: aggregate, dispatch the commit
// pipeline, conclude, narrate. Repeat calls return the same verdict and
// the memoized commit record.
func (s *Service) RequestVerdict(ctx context.Context, sessionID string) (review.Verdict, review.CommitRecord, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return review.Verdict{}, review.CommitRecord{}, err
	}

	verdict, err := s.finalizer.Finalize(ctx, sessionID)
	if err != nil {
		return review.Verdict{}, review.CommitRecord{}, err
	}

	rec := s.committer.Commit(sessionID, sess.Paper.Title, verdict)

	// First conclusion only; a repeat request finds the session already
	// concluded and skips narration.
	if _, err := s.store.Transition(sessionID, sessionmodel.StatusAwaitingVerdict, sessionmodel.StatusConcluded); err == nil {
		s.bus.Publish(Event{Type: EventVerdict, SessionID: sessionID, Payload: verdict})
		if current, getErr := s.store.Get(sessionID); getErr == nil {
			s.publishSession(current)
		}
		s.narrate(sessionID, verdict)
	} else if !errors.Is(err, sessionstore.ErrInvalidTransition) {
		return review.Verdict{}, review.CommitRecord{}, err
	}

	return verdict, rec, nil
}

// State returns the full read-side snapshot of one session.
func (s *Service) State(ctx context.Context, sessionID string) (Snapshot, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	transcript, err := s.store.Transcript(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	analyses, err := s.store.Analyses(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Session: sess, Transcript: transcript, Analyses: analyses}
	if verdict, ok, err := s.store.Verdict(sessionID); err == nil && ok {
		snap.Verdict = &verdict
	}
	return snap, nil
}

// Sessions lists every live session snapshot.
func (s *Service) Sessions(ctx context.Context) []sessionmodel.Session {
	return s.store.List()
}

// Audio returns the synthesized clip for one delivered turn.
func (s *Service) Audio(sessionID string, seq int) ([]byte, bool) {
	if s.speech == nil {
		return nil, false
	}
	return s.speech.Audio(sessionID, seq)
}

// SearchMemory looks up past tribunal summaries.
func (s *Service) SearchMemory(ctx context.Context, query string, limit int) ([]memory.Record, error) {
	if s.memory == nil {
		return nil, ErrMemoryUnavailable
	}
	return s.memory.Search(ctx, query, limit)
}

// dispatchTurns publishes the batch on the event feed and hands it to
// the speech layer.
func (s *Service) dispatchTurns(sessionID string, turns []sessionmodel.Turn) {
	for _, turn := range turns {
		s.bus.Publish(Event{Type: EventTurn, SessionID: sessionID, Payload: turn})
	}
	if s.speech == nil || len(turns) == 0 {
		return
	}
	if err := s.speech.EnqueueTurns(sessionID, turns); err != nil {
		log.Printf("[tribunal] session=%s speech enqueue failed: %v", sessionID, err)
	}
}

// narrate queues the spoken verdict in the narrator voice.
func (s *Service) narrate(sessionID string, verdict review.Verdict) {
	if s.speech == nil {
		return
	}
	text := fmt.Sprintf("The tribunal has reached a verdict. With a score of %d out of 100, the decision is: %s.",
		verdict.Score, verdict.Recommendation)
	if err := s.speech.EnqueueNarration(sessionID, text); err != nil {
		log.Printf("[tribunal] session=%s narration enqueue failed: %v", sessionID, err)
	}
}

func (s *Service) publishSession(sess sessionmodel.Session) {
	s.bus.Publish(Event{Type: EventSession, SessionID: sess.ID, Payload: sess})
}
