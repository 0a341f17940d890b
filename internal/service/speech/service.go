package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
	speechmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/speech"
)

var errSynthDisabled = errors.New("speech synthesis disabled")

// Synthesizer renders text to audio. The production implementation is the
// ElevenLabs HTTP client; a nil synthesizer runs the tribunal text-only.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speechmodel.SynthesisRequest) (speechmodel.SynthesisResult, error)
}

// Limiter bounds concurrent outbound synthesis calls, shared with the
// reviewer backend.
type Limiter interface {
	Acquire(ctx context.Context) (func(), error)
}

// Sessions is the slice of the session store the speech layer needs:
// epoch reads for stale discards, active-speaker bookkeeping, and audio
// references on delivered turns.
type Sessions interface {
	Epoch(id string) (uint64, error)
	SetActiveSpeaker(id, speaker string) error
	SetTurnAudio(id string, seq int, ref string) error
}

// Deliver hands one finished utterance to the transport layer, in strict
// playback order.
type Deliver func(d speechmodel.Delivery)

const (
	defaultConcurrency = 4
	defaultTimeout     = 30 * time.Second
)

// Service owns one playback queue per session plus the shared synthesis
// semaphore, voice table and audio store.
type Service struct {
	synth    Synthesizer
	sessions Sessions
	limiter  Limiter
	deliver  Deliver
	voices   map[string]VoiceProfile
	audio    *AudioStore
	sem      chan struct{}
	timeout  time.Duration
	modelID  string
	format   string

	mu     sync.Mutex
	queues map[string]*queue
	closed bool
}

// NewService builds the speech service. synth may be nil: every delivery
// then degrades to text-only. Non-positive concurrency or timeout select
// the defaults.
func NewService(synth Synthesizer, sessions Sessions, limiter Limiter, deliver Deliver, modelID, format string, concurrency int, timeout time.Duration) *Service {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if deliver == nil {
		deliver = func(speechmodel.Delivery) {}
	}
	return &Service{
		synth:    synth,
		sessions: sessions,
		limiter:  limiter,
		deliver:  deliver,
		voices:   VoiceProfiles(review.Roster()),
		audio:    NewAudioStore(),
		sem:      make(chan struct{}, concurrency),
		timeout:  timeout,
		modelID:  modelID,
		format:   format,
		queues:   make(map[string]*queue),
	}
}

// EnqueueTurns queues reviewer turns for synthesis and ordered playback.
// User turns are never synthesized. Each utterance is stamped with the
// session epoch current at enqueue time.
func (s *Service) EnqueueTurns(sessionID string, turns []sessionmodel.Turn) error {
	epoch, err := s.sessions.Epoch(sessionID)
	if err != nil {
		return err
	}

	utts := make([]speechmodel.Utterance, 0, len(turns))
	for _, turn := range turns {
		if turn.Speaker == review.UserSpeaker {
			continue
		}
		utts = append(utts, speechmodel.Utterance{
			SessionID: sessionID,
			Seq:       turn.Seq,
			Speaker:   turn.Speaker,
			Text:      turn.Text,
			VoiceID:   s.profileFor(turn.Speaker).VoiceID,
			Intensity: s.profileFor(turn.Speaker).Intensity,
			Epoch:     epoch,
		})
	}
	if len(utts) == 0 {
		return nil
	}

	q := s.queueFor(sessionID)
	if q == nil {
		return errors.New("speech service closed")
	}
	q.enqueue(utts)
	return nil
}

// EnqueueNarration queues the verdict narration in the narrator voice.
// Narrations carry sequence 0: they are not transcript turns.
func (s *Service) EnqueueNarration(sessionID, text string) error {
	epoch, err := s.sessions.Epoch(sessionID)
	if err != nil {
		return err
	}

	q := s.queueFor(sessionID)
	if q == nil {
		return errors.New("speech service closed")
	}
	q.enqueue([]speechmodel.Utterance{{
		SessionID: sessionID,
		Speaker:   NarratorSpeaker,
		Text:      text,
		VoiceID:   s.profileFor(NarratorSpeaker).VoiceID,
		Epoch:     epoch,
	}})
	return nil
}

// Interrupt cancels the session's in-flight synthesis calls. The caller
// bumps the session epoch first, so everything already queued is stale
// and gets discarded at playback.
func (s *Service) Interrupt(sessionID string) {
	s.mu.Lock()
	q := s.queues[sessionID]
	s.mu.Unlock()
	if q != nil {
		q.interrupt()
	}
}

// OnIdle returns a channel signaling once the session's queue drains. A
// session with no queue is idle already.
func (s *Service) OnIdle(sessionID string) <-chan struct{} {
	s.mu.Lock()
	q := s.queues[sessionID]
	s.mu.Unlock()
	if q == nil {
		ch := make(chan struct{}, 1)
		ch <- struct{}{}
		return ch
	}
	return q.onIdle()
}

// Audio returns synthesized bytes for one delivered turn.
func (s *Service) Audio(sessionID string, seq int) ([]byte, bool) {
	return s.audio.Get(sessionID, seq)
}

// DropSession releases the session's queue and stored audio.
func (s *Service) DropSession(sessionID string) {
	s.mu.Lock()
	q := s.queues[sessionID]
	delete(s.queues, sessionID)
	s.mu.Unlock()
	if q != nil {
		q.close()
	}
	s.audio.Drop(sessionID)
}

// Close shuts down every session queue.
func (s *Service) Close() {
	s.mu.Lock()
	queues := s.queues
	s.queues = make(map[string]*queue)
	s.closed = true
	s.mu.Unlock()

	for _, q := range queues {
		q.close()
	}
}

func (s *Service) queueFor(sessionID string) *queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	q, ok := s.queues[sessionID]
	if !ok {
		q = newQueue(s, sessionID)
		s.queues[sessionID] = q
	}
	return q
}

func (s *Service) profileFor(speaker string) VoiceProfile {
	if vp, ok := s.voices[speaker]; ok {
		return vp
	}
	return s.voices[NarratorSpeaker]
}
