// Package api is the agent-facing HTTP+JSON surface over a World.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"shelltown.ai/internal/logging"
	"shelltown.ai/internal/sim/world"
)

const maxBodyBytes = 64 * 1024

type Options struct {
	Logger *zap.Logger
	// Gauges adds extra lines to GET /metrics (e.g. index queue stats).
	Gauges func() map[string]uint64
}

type Server struct {
	world  *world.World
	log    *zap.Logger
	gauges func() map[string]uint64
}

func NewServer(w *world.World, opts Options) *Server {
	opts.Logger = logging.OrNop(opts.Logger)
	return &Server{world: w, log: opts.Logger, gauges: opts.Gauges}
}

// Router returns a chi router with the standard middleware and every agent route mounted.
// RemoteAddr is left as the TCP peer; loopback gates downstream depend on it.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.Health)
	r.Get("/metrics", s.MetricsText)

	r.Post("/join", s.Join)
	r.Post("/move", s.Move)
	r.Post("/chat", s.Chat)
	r.Post("/activity", s.Activity)
	r.Delete("/leave/{agentID}", s.Leave)

	r.Get("/world", s.World)
	r.Get("/agents", s.Agents)
	r.Get("/agent/{agentID}", s.Agent)
	r.Get("/relationships/{agentID}", s.Relationships)
	r.Get("/locations", s.Locations)
	r.Get("/feed", s.Feed)
	r.Get("/characters", s.Characters)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		)
	})
}
