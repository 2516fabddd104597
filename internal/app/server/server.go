package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"chatterbox/internal/app/server/handlers"
	"chatterbox/internal/core/contracts"
	"chatterbox/pkg/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	mux            *http.ServeMux
	srv            *http.Server
	log            *slog.Logger
	name           string
	wsHandler      *handlers.WSHandler
	channelHandler *handlers.ChannelHandler
	eventHandler   *handlers.EventHandler
	tokenSvc       middleware.TokenValidator
	eventsSecret   string
	gatherer       prometheus.Gatherer
}

type Deps struct {
	Gateway  handlers.Gateway
	Ledger   handlers.Ledger
	Tokens   middleware.TokenValidator
	// POST /internal/events is mounted only with both a Queue and an
	// EventsSecret. It never accepts end-user tokens.
	Queue          contracts.MessageQueue
	Stream         string
	EventsSecret   string
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer // nil uses the default registry
}

func NewServer(log *slog.Logger, name, addr string, deps Deps) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		log:            log,
		name:           name,
		wsHandler:      handlers.NewWSHandler(deps.Gateway, deps.AllowedOrigins),
		channelHandler: handlers.NewChannelHandler(deps.Ledger),
		tokenSvc:       deps.Tokens,
		eventsSecret:   deps.EventsSecret,
		gatherer:       deps.Gatherer,
	}
	if deps.Queue != nil && deps.EventsSecret != "" {
		s.eventHandler = handlers.NewEventHandler(deps.Queue, deps.Stream)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)

	// Public
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Protected. The handshake is rejected here, before any upgrade.
	s.mux.Handle("GET /ws", auth(http.HandlerFunc(s.wsHandler.Handler)))
	s.mux.Handle("GET /channels/unread", auth(http.HandlerFunc(s.channelHandler.ListUnread)))
	s.mux.Handle("POST /channels/{id}/read", auth(http.HandlerFunc(s.channelHandler.MarkRead)))
	// Internal: the message layer reports durable writes here.
	if s.eventHandler != nil {
		service := middleware.ServiceAuth(s.eventsSecret)
		s.mux.Handle("POST /internal/events", service(http.HandlerFunc(s.eventHandler.Publish)))
	}
}

// Handler returns the mux wrapped in the tracing and request logging middleware.
func (s *Server) Handler() http.Handler {
	return middleware.TracerMiddleware(s.name)(middleware.RequestLogger(s.log)(s.mux))
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info("server - start - listening", "address", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
