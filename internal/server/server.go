package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BlackMission/credlink/internal/apikey"
	"github.com/BlackMission/credlink/internal/connection"
	"github.com/BlackMission/credlink/internal/handler"
	"github.com/BlackMission/credlink/internal/oauthflow"
	"github.com/BlackMission/credlink/internal/session"
	"github.com/BlackMission/credlink/internal/store"
)

const requestIDHeader = "X-Request-ID"

// Config holds the server configuration.
type Config struct {
	Host string
	Port int
}

// Deps holds the service dependencies.
type Deps struct {
	Orchestrator *oauthflow.Orchestrator
	Connections  *connection.Service
	APIKeys      *apikey.Service
	Sessions     *session.Verifier
	// Pinger backs /health. Nil means always healthy.
	Pinger store.Pinger
	Logger *zap.Logger
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *zap.Logger
}

// New creates a new Server with all routes wired.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger.Named("http")
	authed := handler.RequireSession(deps.Sessions, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health(deps.Pinger, logger))
	mux.HandleFunc("GET /providers", handler.Providers(deps.Orchestrator))

	mux.Handle("GET /authorize", authed(handler.Authorize(deps.Orchestrator, logger)))
	mux.HandleFunc("GET /oauth/callback/{provider}", handler.Callback(deps.Orchestrator, logger))
	mux.HandleFunc("GET /oauth/callback/{provider}/{userId}", handler.Callback(deps.Orchestrator, logger))
	mux.Handle("GET /connection/status", authed(handler.ConnectionStatus(deps.Orchestrator, logger)))
	mux.Handle("POST /unlink", authed(handler.Unlink(deps.Connections, logger)))

	mux.Handle("GET /monday/authorize", authed(handler.KeyEntryForm(logger)))
	mux.Handle("GET /get-api-key", authed(handler.APIKeyStatus(deps.APIKeys, logger)))
	mux.Handle("POST /save-api-key", authed(handler.SaveAPIKey(deps.APIKeys, logger)))
	mux.Handle("POST /delete-api-key", authed(handler.DeleteAPIKey(deps.APIKeys, logger)))

	logged := loggingMiddleware(logger, mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		handler: logged,
		logger:  logger,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      logged,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			ErrorLog:     zap.NewStdLog(logger),
		},
	}
}

// Handler returns the server's HTTP handler (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening and serving.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("credlink listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware tags every request with an id, echoes it in the
// response and logs the outcome. Query strings are not logged since they
// carry session tokens and OAuth codes.
func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
