// Package http serves the loan approval model over a JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server serves the HTTP API.
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig configures the listener and middleware chain.
type ServerConfig struct {
	Port            int
	Timeout         time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// DefaultServerConfig listens on :8080.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8080,
		Timeout:         30 * time.Second,
		MaxBodyBytes:    1 << 20,
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: 5 * time.Second,
	}
}

// NewHandler builds the routed and wrapped handler without a listener.
func NewHandler(config ServerConfig, service *TrainingService, progress http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	RegisterHandlers(mux, service, progress, logger)

	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxBodyBytes),
		TimeoutMiddleware(config.Timeout),
	)
	return chain(mux)
}

// NewServer builds the server with the full middleware chain.
func NewServer(config ServerConfig, service *TrainingService, progress http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", config.Port),
			Handler:     NewHandler(config, service, progress, logger),
			ReadTimeout: config.Timeout,
			IdleTimeout: 120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
