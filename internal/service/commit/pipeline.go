package commit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
)

// ErrPermanent marks a sink failure that must not be retried. Sink
// clients wrap client-side rejections with it; anything else is treated
// as transient.
var ErrPermanent = errors.New("permanent sink failure")

// Ledger anchors verdict digests on the blockchain gateway.
type Ledger interface {
	Submit(ctx context.Context, digest string, score int, issuesSummary string) (string, error)
}

// Memory stores session summaries in the semantic-memory service.
type Memory interface {
	Store(ctx context.Context, summary string) (string, error)
}

// Mirror reflects per-sink commit state onto the session snapshot.
type Mirror interface {
	SetLedgerCommit(id string, state review.CommitState) error
	SetMemoryCommit(id string, state review.CommitState) error
}

const (
	defaultAttempts = 3
	backoffBase     = 500 * time.Millisecond
	backoffCap      = 5 * time.Second
	sinkTimeout     = 30 * time.Second
)

type record struct {
	mu  sync.Mutex
	rec review.CommitRecord
}

// Pipeline persists verdicts to both sinks asynchronously. Commit
// returns immediately with both sinks pending; background workers retry
// transient failures with bounded exponential backoff and the two sinks
// never affect each other. Records are memoized by verdict digest, which
// is the at-most-once guarantee: recommitting a digest returns the
// existing record without touching the sinks again.
type Pipeline struct {
	ledger   Ledger
	memory   Memory
	mirror   Mirror
	attempts int
	base     time.Duration

	mu      sync.Mutex
	records map[string]*record

	wg   sync.WaitGroup
	done chan struct{}
}

// NewPipeline builds the pipeline. A nil ledger or memory disables that
// sink: its state goes straight to failed. Non-positive attempts selects
// the default cap.
func NewPipeline(ledger Ledger, memory Memory, mirror Mirror, attempts int) *Pipeline {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &Pipeline{
		ledger:   ledger,
		memory:   memory,
		mirror:   mirror,
		attempts: attempts,
		base:     backoffBase,
		records:  make(map[string]*record),
		done:     make(chan struct{}),
	}
}

// Commit dispatches the verdict to both sinks and returns immediately.
// The returned record snapshot carries pending states that the workers
// update as attempts settle.
func (p *Pipeline) Commit(sessionID, paperTitle string, verdict review.Verdict) review.CommitRecord {
	digest := verdict.Digest()

	p.mu.Lock()
	if existing, ok := p.records[digest]; ok {
		p.mu.Unlock()
		return existing.snapshot()
	}

	r := &record{rec: review.CommitRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Digest:    digest,
		Ledger:    review.SinkResult{State: review.CommitPending},
		Memory:    review.SinkResult{State: review.CommitPending},
		CreatedAt: time.Now(),
	}}
	p.records[digest] = r
	p.mu.Unlock()

	p.mirrorLedger(sessionID, review.CommitPending)
	p.mirrorMemory(sessionID, review.CommitPending)

	p.wg.Add(2)
	go p.runSink(r, "ledger", func(ctx context.Context) (string, error) {
		if p.ledger == nil {
			return "", fmt.Errorf("%w: ledger sink disabled", ErrPermanent)
		}
		return p.ledger.Submit(ctx, digest, verdict.Score, issuesSummary(verdict))
	})
	go p.runSink(r, "memory", func(ctx context.Context) (string, error) {
		if p.memory == nil {
			return "", fmt.Errorf("%w: memory sink disabled", ErrPermanent)
		}
		return p.memory.Store(ctx, sessionSummary(paperTitle, verdict))
	})

	return r.snapshot()
}

// Record returns the current state of a commit by digest.
func (p *Pipeline) Record(digest string) (review.CommitRecord, bool) {
	p.mu.Lock()
	r, ok := p.records[digest]
	p.mu.Unlock()
	if !ok {
		return review.CommitRecord{}, false
	}
	return r.snapshot(), true
}

// Wait blocks until every dispatched commit has settled.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close aborts pending backoff sleeps and waits for workers to exit.
func (p *Pipeline) Close() {
	close(p.done)
	p.wg.Wait()
}

// runSink drives one sink to a terminal state: committed on success,
// failed on a permanent error or once the attempt cap is exhausted.
func (p *Pipeline) runSink(r *record, sink string, attempt func(ctx context.Context) (string, error)) {
	defer p.wg.Done()

	sessionID := r.sessionID()
	var lastErr error

	for i := 1; i <= p.attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		ref, err := attempt(ctx)
		cancel()

		if err == nil {
			r.settle(sink, review.SinkResult{State: review.CommitDone, Attempts: i, Ref: ref})
			p.mirrorSink(sink, sessionID, review.CommitDone)
			log.Printf("[commit] sink=%s session=%s committed ref=%s attempts=%d", sink, sessionID, ref, i)
			return
		}

		lastErr = err
		if errors.Is(err, ErrPermanent) {
			r.settle(sink, review.SinkResult{State: review.CommitFailed, Attempts: i, LastError: err.Error()})
			p.mirrorSink(sink, sessionID, review.CommitFailed)
			log.Printf("[commit] sink=%s session=%s permanent failure: %v", sink, sessionID, err)
			return
		}

		log.Printf("[commit] sink=%s session=%s attempt %d/%d failed: %v", sink, sessionID, i, p.attempts, err)
		if i < p.attempts && !p.sleep(p.backoff(i)) {
			break
		}
	}

	r.settle(sink, review.SinkResult{State: review.CommitFailed, Attempts: p.attempts, LastError: lastErr.Error()})
	p.mirrorSink(sink, sessionID, review.CommitFailed)
}

// sleep waits out a backoff, returning false if the pipeline closed.
func (p *Pipeline) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.done:
		return false
	}
}

func (p *Pipeline) backoff(attempt int) time.Duration {
	d := p.base << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

func (p *Pipeline) mirrorSink(sink, sessionID string, state review.CommitState) {
	if sink == "ledger" {
		p.mirrorLedger(sessionID, state)
	} else {
		p.mirrorMemory(sessionID, state)
	}
}

func (p *Pipeline) mirrorLedger(sessionID string, state review.CommitState) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.SetLedgerCommit(sessionID, state); err != nil {
		log.Printf("[commit] session=%s ledger state not mirrored: %v", sessionID, err)
	}
}

func (p *Pipeline) mirrorMemory(sessionID string, state review.CommitState) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.SetMemoryCommit(sessionID, state); err != nil {
		log.Printf("[commit] session=%s memory state not mirrored: %v", sessionID, err)
	}
}

func (r *record) snapshot() review.CommitRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec
}

func (r *record) sessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.SessionID
}

func (r *record) settle(sink string, result review.SinkResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sink == "ledger" {
		r.rec.Ledger = result
	} else {
		r.rec.Memory = result
	}
}

// issuesSummary is the compact critical-issue digest submitted alongside
// the score.
func issuesSummary(verdict review.Verdict) string {
	if len(verdict.CriticalIssues) == 0 {
		return "no critical issues"
	}
	titles := make([]string, 0, len(verdict.CriticalIssues))
	for _, issue := range verdict.CriticalIssues {
		titles = append(titles, issue.Title)
	}
	return strings.Join(titles, "; ")
}

// sessionSummary is the memory-record text format.
func sessionSummary(paperTitle string, verdict review.Verdict) string {
	return fmt.Sprintf("Tribunal Review: %s. Verdict: %s. Score: %d/100. Critical issues: %s",
		paperTitle, verdict.Recommendation, verdict.Score, issuesSummary(verdict))
}
