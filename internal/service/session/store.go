package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	model "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrAnalysesExist     = errors.New("analyses already recorded")
	ErrVerdictExists     = errors.New("verdict already recorded")
)

const (
	defaultRetention = time.Hour
	defaultSweep     = 5 * time.Minute
)

// entry holds one session's mutable state behind its own lock. All
// mutation happens under entry.mu, which is the per-session exclusive
// lock the rest of the system relies on.
type entry struct {
	mu       sync.Mutex
	sess     model.Session
	seq      int
	rounds   int
	turns    []model.Turn
	analyses map[review.Reviewer]review.Analysis
	verdict  *review.Verdict
}

// Store is the keyed registry of tribunal sessions and the only holder of
// mutable session state. The store lock guards the map; each session has
// its own mutex, and no operation ever holds two session locks at once.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	retention time.Duration
	onEvict   func(id string)
	done      chan struct{}
	closeOnce sync.Once
}

// NewStore builds the registry and starts the retention janitor. Zero
// durations select the defaults (1h retention, 5m sweep).
func NewStore(retention, sweepEvery time.Duration) *Store {
	if retention <= 0 {
		retention = defaultRetention
	}
	if sweepEvery <= 0 {
		sweepEvery = defaultSweep
	}
	s := &Store{
		entries:   make(map[string]*entry),
		retention: retention,
		done:      make(chan struct{}),
	}
	go s.janitor(sweepEvery)
	return s
}

// Close stops the retention janitor.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// OnEvict registers a callback invoked with each evicted session id, so
// dependent layers (speech queues, event feeds) can release their state.
// Must be set before the first sweep can fire.
func (s *Store) OnEvict(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// Create registers a new session around the ingested paper.
func (s *Store) Create(paper model.Paper) model.Session {
	now := time.Now()
	sess := model.Session{
		ID:           uuid.NewString(),
		Paper:        paper,
		Status:       model.StatusCreated,
		LedgerCommit: review.CommitNotAttempted,
		MemoryCommit: review.CommitNotAttempted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.entries[sess.ID] = &entry{sess: sess}
	s.mu.Unlock()

	return sess
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (model.Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return model.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, nil
}

// List snapshots every live session.
func (s *Store) List() []model.Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]model.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.sess)
		e.mu.Unlock()
	}
	return out
}

// Transition moves the session from one status to another, rejecting any
// other current status.
func (s *Store) Transition(id string, from, to model.Status) (model.Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return model.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status != from {
		return model.Session{}, ErrInvalidTransition
	}
	e.sess.Status = to
	e.sess.UpdatedAt = time.Now()
	if to == model.StatusConcluded {
		e.sess.ConcludedAt = e.sess.UpdatedAt
	}
	return e.sess, nil
}

// Epoch reads the session's current interruption epoch.
func (s *Store) Epoch(id string) (uint64, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Epoch, nil
}

// Interrupt atomically advances the epoch, clears the active speaker and
// flags the most recent reviewer turn as cut off. Returns the new epoch.
func (s *Store) Interrupt(id string) (uint64, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.Epoch++
	e.sess.ActiveSpeaker = ""
	e.sess.UpdatedAt = time.Now()
	for i := len(e.turns) - 1; i >= 0; i-- {
		if e.turns[i].Speaker != review.UserSpeaker {
			e.turns[i].WasInterrupted = true
			break
		}
	}
	return e.sess.Epoch, nil
}

// SetActiveSpeaker records who is talking right now; empty clears it.
func (s *Store) SetActiveSpeaker(id, speaker string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.ActiveSpeaker = speaker
	e.sess.UpdatedAt = time.Now()
	return nil
}

// AppendTurn assigns the next sequence number under the session lock and
// appends the turn. A turn whose epoch is behind the session's current
// epoch is a benign discard: appended=false, no error, nothing written.
func (s *Store) AppendTurn(id string, t model.Turn) (model.Turn, bool, error) {
	e, err := s.entry(id)
	if err != nil {
		return model.Turn{}, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if t.Epoch < e.sess.Epoch {
		return model.Turn{}, false, nil
	}

	e.seq++
	t.Seq = e.seq
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	e.turns = append(e.turns, t)
	e.sess.UpdatedAt = time.Now()
	return t, true, nil
}

// SetTurnAudio attaches a synthesized-audio reference to an appended
// turn. Unknown sequence numbers are ignored: the turn may have been
// discarded by an interruption after synthesis started.
func (s *Store) SetTurnAudio(id string, seq int, ref string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.turns {
		if e.turns[i].Seq == seq {
			e.turns[i].AudioRef = ref
			return nil
		}
	}
	return nil
}

// Transcript returns a copy of the appended turns in sequence order.
func (s *Store) Transcript(id string) ([]model.Turn, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Turn(nil), e.turns...), nil
}

// PutAnalyses records the reviewer analyses exactly once.
func (s *Store) PutAnalyses(id string, analyses map[review.Reviewer]review.Analysis) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.analyses != nil {
		return ErrAnalysesExist
	}
	copied := make(map[review.Reviewer]review.Analysis, len(analyses))
	for k, v := range analyses {
		copied[k] = v
	}
	e.analyses = copied
	e.sess.UpdatedAt = time.Now()
	return nil
}

// Analyses returns a copy of the recorded analyses, nil when analysis has
// not run yet.
func (s *Store) Analyses(id string) (map[review.Reviewer]review.Analysis, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.analyses == nil {
		return nil, nil
	}
	copied := make(map[review.Reviewer]review.Analysis, len(e.analyses))
	for k, v := range e.analyses {
		copied[k] = v
	}
	return copied, nil
}

// IncrementRounds bumps the completed full-pass counter.
func (s *Store) IncrementRounds(id string) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rounds++
	return e.rounds, nil
}

// Rounds reads the completed full-pass counter.
func (s *Store) Rounds(id string) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rounds, nil
}

// PutVerdict stores the verdict exactly once.
func (s *Store) PutVerdict(id string, v review.Verdict) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.verdict != nil {
		return ErrVerdictExists
	}
	e.verdict = &v
	e.sess.UpdatedAt = time.Now()
	return nil
}

// Verdict returns the stored verdict, ok=false before finalization.
func (s *Store) Verdict(id string) (review.Verdict, bool, error) {
	e, err := s.entry(id)
	if err != nil {
		return review.Verdict{}, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.verdict == nil {
		return review.Verdict{}, false, nil
	}
	return *e.verdict, true, nil
}

// SetLedgerCommit mirrors the ledger sink state onto the session.
func (s *Store) SetLedgerCommit(id string, state review.CommitState) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.LedgerCommit = state
	e.sess.UpdatedAt = time.Now()
	return nil
}

// SetMemoryCommit mirrors the memory sink state onto the session.
func (s *Store) SetMemoryCommit(id string, state review.CommitState) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.MemoryCommit = state
	e.sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) entry(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *Store) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// sweep evicts sessions that concluded longer than the retention window
// ago. Returns the number evicted.
func (s *Store) sweep(now time.Time) int {
	s.mu.Lock()
	var expired []string
	for id, e := range s.entries {
		e.mu.Lock()
		gone := e.sess.Status == model.StatusConcluded &&
			!e.sess.ConcludedAt.IsZero() &&
			now.Sub(e.sess.ConcludedAt) > s.retention
		e.mu.Unlock()
		if gone {
			delete(s.entries, id)
			expired = append(expired, id)
		}
	}
	onEvict := s.onEvict
	s.mu.Unlock()

	if onEvict != nil {
		for _, id := range expired {
			onEvict(id)
		}
	}
	return len(expired)
}
