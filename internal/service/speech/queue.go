package speech

import (
	"context"
	"errors"
	"log"
	"sync"

	speechmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/speech"
)

// queueDepth bounds how many utterances may wait for playback. Debate
// batches are at most four turns, so the bound is never reached in
// practice.
const queueDepth = 256

// item is one utterance moving through the queue. done closes when
// synthesis has settled (result or error); cancel aborts an in-flight
// synthesis call after an interruption.
type item struct {
	utt    speechmodel.Utterance
	done   chan struct{}
	res    speechmodel.SynthesisResult
	err    error
	cancel context.CancelFunc
}

// queue serializes playback for one session. Synthesis for queued items
// runs concurrently under the service's semaphore; a single consumer
// goroutine delivers finished utterances strictly in enqueue order, so at
// most one utterance is active per session at any instant.
type queue struct {
	svc       *Service
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	items chan *item

	mu       sync.Mutex
	inflight map[*item]struct{}
	pending  int
	idle     []chan struct{}
}

func newQueue(svc *Service, sessionID string) *queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &queue{
		svc:       svc,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		items:     make(chan *item, queueDepth),
		inflight:  make(map[*item]struct{}),
	}
	go q.playback()
	return q
}

// enqueue admits utterances in order and starts their synthesis.
func (q *queue) enqueue(utts []speechmodel.Utterance) {
	for _, utt := range utts {
		synthCtx, cancel := context.WithCancel(q.ctx)
		it := &item{
			utt:    utt,
			done:   make(chan struct{}),
			cancel: cancel,
		}

		q.mu.Lock()
		q.pending++
		q.inflight[it] = struct{}{}
		q.mu.Unlock()

		go q.synthesize(synthCtx, it)

		select {
		case q.items <- it:
		case <-q.ctx.Done():
			cancel()
			q.finish(it)
			return
		}
	}
}

// interrupt cancels every in-flight synthesis call. Queued items are not
// physically removed: their epoch is now stale, so playback discards them
// on arrival.
func (q *queue) interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for it := range q.inflight {
		it.cancel()
	}
}

// onIdle returns a channel that signals once the queue has fully drained.
// A queue with nothing pending signals immediately.
func (q *queue) onIdle() <-chan struct{} {
	ch := make(chan struct{}, 1)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		ch <- struct{}{}
		return ch
	}
	q.idle = append(q.idle, ch)
	return ch
}

func (q *queue) close() {
	q.cancel()
}

// synthesize renders one item's audio under the shared limiter and the
// synthesis semaphore. Failure leaves the item text-only; playback order
// is unaffected either way.
func (q *queue) synthesize(ctx context.Context, it *item) {
	defer close(it.done)
	defer func() {
		q.mu.Lock()
		delete(q.inflight, it)
		q.mu.Unlock()
	}()

	if q.svc.synth == nil {
		it.err = errSynthDisabled
		return
	}

	if q.svc.limiter != nil {
		release, err := q.svc.limiter.Acquire(ctx)
		if err != nil {
			it.err = err
			return
		}
		defer release()
	}

	select {
	case q.svc.sem <- struct{}{}:
		defer func() { <-q.svc.sem }()
	case <-ctx.Done():
		it.err = ctx.Err()
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, q.svc.timeout)
	defer cancel()

	vp := q.svc.profileFor(it.utt.Speaker)
	req := BuildRequest(it.utt.Text, vp, q.svc.modelID, q.svc.format)
	it.res, it.err = q.svc.synth.Synthesize(callCtx, req)
}

// playback is the single consumer: it waits for each item's synthesis to
// settle, drops stale epochs, and delivers the rest in strict FIFO order.
func (q *queue) playback() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case it := <-q.items:
			select {
			case <-it.done:
			case <-q.ctx.Done():
				return
			}
			q.deliver(it)
			q.finish(it)
		}
	}
}

func (q *queue) deliver(it *item) {
	current, err := q.svc.sessions.Epoch(q.sessionID)
	if err != nil {
		// Session evicted mid-playback; nothing left to deliver to.
		return
	}
	if it.utt.Epoch < current {
		// Expected after an interruption: benign discard, no logging.
		return
	}

	delivery := speechmodel.Delivery{Utterance: it.utt}
	if it.err == nil && len(it.res.Audio) > 0 {
		delivery.AudioRef = q.svc.audio.Put(q.sessionID, it.utt.Seq, it.res.Audio)
		if it.utt.Seq > 0 {
			if err := q.svc.sessions.SetTurnAudio(q.sessionID, it.utt.Seq, delivery.AudioRef); err != nil {
				log.Printf("[speech] session=%s seq=%d audio ref not recorded: %v", q.sessionID, it.utt.Seq, err)
			}
		}
	} else {
		delivery.TextOnly = true
		if it.err != nil && it.err != errSynthDisabled && !isCanceled(it.err) {
			log.Printf("[speech] session=%s seq=%d text-only fallback: %v", q.sessionID, it.utt.Seq, it.err)
		}
	}

	if err := q.svc.sessions.SetActiveSpeaker(q.sessionID, it.utt.Speaker); err != nil {
		return
	}
	q.svc.deliver(delivery)
	_ = q.svc.sessions.SetActiveSpeaker(q.sessionID, "")
}

func (q *queue) finish(it *item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending == 0 {
		for _, ch := range q.idle {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		q.idle = nil
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
