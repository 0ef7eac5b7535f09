package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsechat/pulse/api/auth"
	"github.com/pulsechat/pulse/api/config"
	"github.com/pulsechat/pulse/api/store"
	"github.com/pulsechat/pulse/pkg/otel"
)

const ReadTimeout = 30 * time.Second

type Server struct {
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
	registry *Registry
}

func NewServer(
	cfg *config.Config,
	s *store.Store,
	gate *auth.Gate,
	limiter *auth.ConnectLimiter,
	registry *Registry,
	dispatcher *Dispatcher,
) *Server {
	router := chi.NewRouter()

	router.Use(otel.Middleware("pulse-api", "/healthz", "/metrics"))
	router.Use(Recovery)
	router.Use(Logger)
	router.Use(CORS(cfg.Server.AllowedOrigins))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Pool().Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	wsHandler := NewWSHandler(cfg, gate, limiter, registry, dispatcher)
	router.Get("/ws", wsHandler.ServeHTTP)

	return &Server{
		cfg:      cfg,
		router:   router,
		registry: registry,
	}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: ReadTimeout,
		// WriteTimeout stays zero: WebSocket connections outlive any
		// sensible HTTP write deadline.
		WriteTimeout: 0,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
