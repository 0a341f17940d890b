package session

import (
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
)

// Status tracks a tribunal session through its lifecycle.
type Status string

const (
	StatusCreated         Status = "created"
	StatusAnalyzing       Status = "analyzing"
	StatusDebating        Status = "debating"
	StatusAwaitingVerdict Status = "awaiting_verdict"
	StatusConcluded       Status = "concluded"
)

// Paper is the normalized document under review.
type Paper struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Session captures one tribunal's state. Owned exclusively by the session
// store and mutated only under its per-session lock; everything handed out
// of the store is a snapshot copy.
type Session struct {
	ID            string             `json:"id"`
	Paper         Paper              `json:"paper"`
	Status        Status             `json:"status"`
	Epoch         uint64             `json:"epoch"`
	ActiveSpeaker string             `json:"activeSpeaker,omitempty"`
	LedgerCommit  review.CommitState `json:"ledgerCommit"`
	MemoryCommit  review.CommitState `json:"memoryCommit"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	ConcludedAt   time.Time          `json:"concludedAt,omitempty"`
}
