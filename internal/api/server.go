package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/forge-interview/internal/interview"
	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/internal/store"
	"github.com/sells-group/forge-interview/internal/voice"
	"github.com/sells-group/forge-interview/pkg/voiceagent"
)

// InterviewEngine is the engine surface the HTTP layer depends on.
type InterviewEngine interface {
	PlanRound(ctx context.Context, forgeID string) ([]model.Section, error)
	Start(ctx context.Context, forgeID string) (string, error)
	Turn(ctx context.Context, forgeID, userText string) <-chan interview.Event
	Progress(ctx context.Context, forgeID string) ([]model.Section, interview.Active, error)
	EndEarly(ctx context.Context, forgeID string) error
}

// VoiceReactor is the voice surface the HTTP layer depends on.
type VoiceReactor interface {
	Bootstrap(ctx context.Context, forgeID string) (*voiceagent.Session, error)
	HandleUtterance(ctx context.Context, ev voiceagent.UtteranceEvent) error
	HandleDisconnect(ctx context.Context, forgeID string) (*voice.ResumeOffer, error)
	End(ctx context.Context, sessionID string) error
}

// Server serves the interview HTTP API.
type Server struct {
	engine InterviewEngine
	voice  VoiceReactor
	store  store.Store
}

// NewServer wires the HTTP layer.
func NewServer(engine InterviewEngine, reactor VoiceReactor, st store.Store) *Server {
	return &Server{engine: engine, voice: reactor, store: st}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/forges", func(r chi.Router) {
		r.Post("/", s.handleCreateForge)
		r.Route("/{forgeID}", func(r chi.Router) {
			r.Get("/", s.handleGetForge)
			r.Post("/plan", s.handlePlanRound)
			r.Post("/start", s.handleStart)
			r.Post("/turn", s.handleTurn)
			r.Get("/progress", s.handleProgress)
			r.Post("/end", s.handleEnd)
			r.Post("/voice", s.handleVoiceBootstrap)
		})
	})

	r.Post("/voice/webhook", s.handleVoiceWebhook)

	return r
}

// requestLogger logs each request with the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	zap.L().Error("request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
