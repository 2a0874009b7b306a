package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"earnwatch/internal/logger"
)

const idleTimeout = 120 * time.Second

// Server wraps the status HTTP server with graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// NewServer builds the HTTP server around the router's engine.
func NewServer(router *Router, addr string, readTimeout, writeTimeout time.Duration, log logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router.SetupRoutes(),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		logger: log,
	}
}

// Start serves until Shutdown is called. It blocks; run it in a
// goroutine.
func (s *Server) Start() error {
	s.logger.Info("Status API listening", logger.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down status API")
	return s.httpServer.Shutdown(ctx)
}
