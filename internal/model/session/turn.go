package session

import (
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
)

// Turn is one utterance in the debate transcript. Turns are append-only;
// sequence numbers are assigned under the session lock and are gap-free. A
// turn carrying an epoch older than the session's current epoch at append
// time is discarded, never written.
type Turn struct {
	Seq            int              `json:"seq"`
	Round          int              `json:"round,omitempty"`
	Speaker        string           `json:"speaker"`
	Text           string           `json:"text"`
	AudioRef       string           `json:"audioRef,omitempty"`
	Epoch          uint64           `json:"epoch"`
	WasInterrupted bool             `json:"wasInterrupted,omitempty"`
	Concerns       []review.Concern `json:"concerns,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}
