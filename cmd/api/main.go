package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/paper-tribunal/backend/internal/config"
	"github.com/zhouzirui/paper-tribunal/backend/internal/handler"
	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	speechmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/speech"
	aiservice "github.com/zhouzirui/paper-tribunal/backend/internal/service/ai"
	analysisservice "github.com/zhouzirui/paper-tribunal/backend/internal/service/analysis"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/commit"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/debate"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/ingest"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/ledger"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/memory"
	sessionstore "github.com/zhouzirui/paper-tribunal/backend/internal/service/session"
	speechservice "github.com/zhouzirui/paper-tribunal/backend/internal/service/speech"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/tribunal"
	verdictservice "github.com/zhouzirui/paper-tribunal/backend/internal/service/verdict"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	roster := review.NewMemoryStore(review.Roster())
	store := sessionstore.NewStore(cfg.Tribunal.Retention, cfg.Tribunal.SweepEvery)
	defer store.Close()

	bus := tribunal.NewBus()
	limiter := tribunal.NewSlotLimiter(cfg.Tribunal.LimiterSlots)

	caps := tribunal.Capabilities{
		AIOnline: false,
		Speech:   cfg.Speech.Enabled,
		Ledger:   cfg.Ledger.Enabled,
		Memory:   cfg.Memory.Enabled,
	}

	// Reviewer backend: Ark-backed chains when credentials exist, canned
	// offline reviewers otherwise.
	var (
		analyzer  analysisservice.Analyzer
		generator debate.Generator
		narrator  verdictservice.Narrator
	)
	if cfg.AI.Enabled() {
		aiSvc, err := aiservice.NewService(ctx, cfg.AI, limiter)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing with offline reviewers - check the Ark environment variables")
		} else {
			log.Println("AI service initialized successfully")
			analyzer, generator, narrator = aiSvc, aiSvc, aiSvc
			caps.AIOnline = true
		}
	} else {
		log.Println("Ark credentials not configured, reviewers run in offline mode")
	}
	if analyzer == nil {
		offline := aiservice.NewOffline()
		analyzer, generator, narrator = offline, offline, offline
	}

	// Speech backend: nil synthesizer keeps sessions text-only.
	var synth speechservice.Synthesizer
	if cfg.Speech.Enabled {
		synth = speechservice.NewElevenLabsClient(cfg.Speech)
		log.Println("speech synthesis enabled")
	} else {
		log.Println("speech credentials not configured, sessions run text-only")
	}

	// Finished utterances go out on the session feed in playback order.
	deliver := func(d speechmodel.Delivery) {
		bus.Publish(tribunal.Event{Type: tribunal.EventAudio, SessionID: d.SessionID, Payload: d})
	}
	speechSvc := speechservice.NewService(
		synth, store, limiter, deliver,
		cfg.Speech.ModelID, cfg.Speech.Format,
		cfg.Tribunal.SynthConcurrency, cfg.Speech.Timeout,
	)
	defer speechSvc.Close()

	store.OnEvict(func(id string) {
		speechSvc.DropSession(id)
		bus.DropSession(id)
	})

	coordinator := analysisservice.NewCoordinator(analyzer, roster.List(), cfg.Tribunal.ReviewerTimeout)
	engine := debate.NewEngine(store, generator, roster.List(), nil,
		interrupter{store: store, speech: speechSvc}, cfg.Tribunal.ReviewerTimeout)
	aggregator := verdictservice.NewAggregator(store, narrator, cfg.Tribunal.ReviewerTimeout)

	// Durable sinks: nil clients disable their sink.
	var ledgerSink commit.Ledger
	if cfg.Ledger.Enabled {
		ledgerSink = ledger.NewClient(cfg.Ledger)
		log.Println("ledger sink enabled")
	} else {
		log.Println("ledger gateway not configured, ledger sink disabled")
	}

	var memorySink commit.Memory
	var memorySearch tribunal.MemorySearcher
	if cfg.Memory.Enabled {
		client := memory.NewClient(cfg.Memory)
		memorySink = client
		memorySearch = client
		log.Println("memory sink enabled")
	} else {
		log.Println("memory service not configured, memory sink disabled")
	}

	pipeline := commit.NewPipeline(ledgerSink, memorySink, store, cfg.Tribunal.CommitAttempts)
	defer pipeline.Close()

	svc := tribunal.NewService(
		ingest.NewService(cfg.Tribunal.MaxPaperChars),
		store, coordinator, engine, aggregator, pipeline,
		speechSvc, memorySearch, bus, caps,
	)

	router := handler.NewRouter(svc, roster, synth, cfg.Speech.ModelID, cfg.Speech.Format)

	startServer(ctx, cfg.Server, router)
}

// interrupter glues the debate engine's interrupt hook to the session
// store and the speech layer.
type interrupter struct {
	store  *sessionstore.Store
	speech *speechservice.Service
}

func (i interrupter) Interrupt(sessionID string) error {
	if _, err := i.store.Interrupt(sessionID); err != nil {
		return err
	}
	i.speech.Interrupt(sessionID)
	return nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("paper tribunal backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
