package debate

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/analysis/address"
	"github.com/zhouzirui/paper-tribunal/backend/internal/analysis/rubric"
	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
	sessionstore "github.com/zhouzirui/paper-tribunal/backend/internal/service/session"
)

var ErrNoAnalyses = errors.New("reviewer analyses not recorded yet")

// Generator produces reviewer speech. The production implementation is
// the eino-backed AI service; tests plug in fakes.
type Generator interface {
	OpeningStatement(ctx context.Context, profile review.Profile, analysis review.Analysis) (string, error)
	DebateReply(ctx context.Context, profile review.Profile, transcript []sessionmodel.Turn, userText string) (string, error)
}

// Interrupter cuts off the current speaker before a new user turn is
// processed: epoch bump, queue clear, in-flight cancellation.
type Interrupter interface {
	Interrupt(sessionID string) error
}

// AddressPolicy decides which reviewers a user utterance addresses. It
// must be a pure function of its inputs so identical input always
// addresses the same subset. An empty result triggers the engine's
// fallback: address the full bench.
type AddressPolicy func(userText string, roster []review.Profile) []review.Reviewer

const defaultTimeout = 45 * time.Second

// Engine runs the turn-based debate: opening statements after analysis,
// then addressed replies to each user message. Generation fans out
// concurrently; fan-in is always in canonical reviewer order, never
// completion order.
type Engine struct {
	store       *sessionstore.Store
	gen         Generator
	roster      []review.Profile
	policy      AddressPolicy
	interrupter Interrupter
	timeout     time.Duration
}

// NewEngine builds the engine. A nil policy selects the default keyword
// router; a non-positive timeout selects the default per-call timeout.
func NewEngine(store *sessionstore.Store, gen Generator, roster []review.Profile, policy AddressPolicy, interrupter Interrupter, timeout time.Duration) *Engine {
	if policy == nil {
		policy = address.Resolve
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Engine{
		store:       store,
		gen:         gen,
		roster:      roster,
		policy:      policy,
		interrupter: interrupter,
		timeout:     timeout,
	}
}

// OpeningStatements generates one opening per reviewer, grounded in that
// reviewer's analysis, and appends them as round 1 in canonical order. A
// failed generation skips that reviewer's opening without disturbing the
// rest.
func (e *Engine) OpeningStatements(ctx context.Context, sessionID string) ([]sessionmodel.Turn, error) {
	analyses, err := e.store.Analyses(sessionID)
	if err != nil {
		return nil, err
	}
	if analyses == nil {
		return nil, ErrNoAnalyses
	}

	epoch, err := e.store.Epoch(sessionID)
	if err != nil {
		return nil, err
	}

	texts := e.fanOut(ctx, e.roster, func(callCtx context.Context, profile review.Profile) (string, error) {
		return e.gen.OpeningStatement(callCtx, profile, analyses[profile.Key])
	})

	turns := make([]sessionmodel.Turn, 0, len(e.roster))
	for _, profile := range e.roster {
		text, ok := texts[profile.Key]
		if !ok {
			continue
		}
		turn, appended, err := e.store.AppendTurn(sessionID, sessionmodel.Turn{
			Round:   1,
			Speaker: string(profile.Key),
			Text:    text,
			Epoch:   epoch,
		})
		if err != nil {
			return nil, err
		}
		if appended {
			turns = append(turns, turn)
		}
	}

	if _, err := e.store.IncrementRounds(sessionID); err != nil {
		return nil, err
	}
	return turns, nil
}

// Respond processes one user message: optional interrupt, user turn
// append, addressed-reviewer resolution, concurrent generation, canonical
// fan-in. Returned turns are the reviewer replies that survived the epoch
// check, in canonical order.
func (e *Engine) Respond(ctx context.Context, sessionID, userText string, interruptRequested bool) ([]sessionmodel.Turn, error) {
	if interruptRequested && e.interrupter != nil {
		if err := e.interrupter.Interrupt(sessionID); err != nil {
			return nil, err
		}
	}

	epoch, err := e.store.Epoch(sessionID)
	if err != nil {
		return nil, err
	}

	if _, _, err := e.store.AppendTurn(sessionID, sessionmodel.Turn{
		Speaker: review.UserSpeaker,
		Text:    userText,
		Epoch:   epoch,
	}); err != nil {
		return nil, err
	}

	transcript, err := e.store.Transcript(sessionID)
	if err != nil {
		return nil, err
	}

	addressed := e.addressed(userText)
	texts := e.fanOut(ctx, addressed, func(callCtx context.Context, profile review.Profile) (string, error) {
		return e.gen.DebateReply(callCtx, profile, transcript, userText)
	})

	turns := make([]sessionmodel.Turn, 0, len(addressed))
	for _, profile := range addressed {
		text, ok := texts[profile.Key]
		if !ok {
			continue
		}
		turn, appended, err := e.store.AppendTurn(sessionID, sessionmodel.Turn{
			Speaker:  string(profile.Key),
			Text:     text,
			Epoch:    epoch,
			Concerns: rubric.ExtractConcerns(text, profile.Key),
		})
		if err != nil {
			return nil, err
		}
		if appended {
			turns = append(turns, turn)
		}
	}
	return turns, nil
}

// addressed maps the policy's reviewer set onto roster profiles in
// canonical order, falling back to the full bench when the policy
// addresses nobody.
func (e *Engine) addressed(userText string) []review.Profile {
	selected := e.policy(userText, e.roster)
	if len(selected) == 0 {
		return e.roster
	}

	keys := make(map[review.Reviewer]struct{}, len(selected))
	for _, r := range selected {
		keys[r] = struct{}{}
	}

	out := make([]review.Profile, 0, len(keys))
	for _, profile := range e.roster {
		if _, ok := keys[profile.Key]; ok {
			out = append(out, profile)
		}
	}
	return out
}

// fanOut runs one generation per profile concurrently, each under its own
// timeout, and collects the texts that settled successfully. Failures are
// logged and skipped; the barrier always waits for every call.
func (e *Engine) fanOut(ctx context.Context, profiles []review.Profile, generate func(context.Context, review.Profile) (string, error)) map[review.Reviewer]string {
	texts := make(map[review.Reviewer]string, len(profiles))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, profile := range profiles {
		wg.Add(1)
		go func(profile review.Profile) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			text, err := generate(callCtx, profile)
			if err != nil {
				log.Printf("[debate] reviewer=%s skipped: %v", profile.Key, err)
				return
			}

			mu.Lock()
			texts[profile.Key] = text
			mu.Unlock()
		}(profile)
	}
	wg.Wait()

	return texts
}
