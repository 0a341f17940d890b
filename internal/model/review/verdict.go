package review

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Verdict is the tribunal's final judgement. Created at most once per
// session and immutable afterwards; repeated verdict requests must return
// this value unchanged.
type Verdict struct {
	SessionID      string    `json:"sessionId"`
	Score          int       `json:"score"`
	Summary        string    `json:"summary"`
	Recommendation string    `json:"recommendation"`
	CriticalIssues []Concern `json:"criticalIssues"`
	TotalConcerns  int       `json:"totalConcerns"`
	CriticalCount  int       `json:"criticalConcerns"`
	DebateRounds   int       `json:"debateRounds"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Digest hashes the verdict's canonical serialization. It is the
// idempotency key for every sink commit: equal verdicts share a digest,
// any field change produces a new one.
func (v Verdict) Digest() string {
	payload, err := json.Marshal(v)
	if err != nil {
		// Verdict contains only marshal-safe fields; keep a stable
		// fallback anyway so commits never panic.
		payload = []byte(v.SessionID)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// CommitState tracks one sink's progress for a verdict commit.
type CommitState string

const (
	CommitNotAttempted CommitState = "not_attempted"
	CommitPending      CommitState = "pending"
	CommitDone         CommitState = "committed"
	CommitFailed       CommitState = "failed"
)

// SinkResult reports a single sink's outcome within a commit record.
type SinkResult struct {
	State     CommitState `json:"state"`
	Attempts  int         `json:"attempts"`
	Ref       string      `json:"ref,omitempty"`
	LastError string      `json:"lastError,omitempty"`
}

// CommitRecord is the durable trace of one verdict commit. The digest keys
// the record; re-committing the same digest returns the existing record
// instead of producing duplicate sink entries.
type CommitRecord struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Digest    string     `json:"digest"`
	Ledger    SinkResult `json:"ledger"`
	Memory    SinkResult `json:"memory"`
	CreatedAt time.Time  `json:"createdAt"`
}
