package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/paper-tribunal/backend/internal/handler/reviewer"
	sessionHandler "github.com/zhouzirui/paper-tribunal/backend/internal/handler/session"
	speechHandler "github.com/zhouzirui/paper-tribunal/backend/internal/handler/speech"
	"github.com/zhouzirui/paper-tribunal/backend/internal/handler/stream"
	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/tribunal"
	"github.com/zhouzirui/paper-tribunal/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. synth may be nil when
// the speech backend is disabled; the one-off synthesize endpoint then
// reports unavailable while sessions keep running text-only.
func NewRouter(svc *tribunal.Service, roster review.Store, synth speechHandler.Synthesizer, speechModelID, speechFormat string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	sessions := sessionHandler.New(svc)
	reviewers := reviewer.New(roster)
	streams := stream.New(svc)
	speech := speechHandler.New(synth, roster, speechModelID, speechFormat)
	sockets := speechHandler.NewWebSocketHandler(svc)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":       "ok",
				"capabilities": svc.Capabilities(),
			})
		})

		sessions.RegisterRoutes(api)
		reviewers.RegisterRoutes(api)
		streams.RegisterRoutes(api)
		speech.RegisterRoutes(api)
		sockets.RegisterRoutes(api)
	})

	return r
}

// cors allows browser frontends on other origins to reach the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
