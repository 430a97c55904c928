package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/api/auth"
)

// ErrNoJWTSecret is returned when the API is started without a signing key.
var ErrNoJWTSecret = errors.New("api.jwt.secret (or " + EnvJWTSecret + ") is required to serve the API")

// Server serves the REST API with graceful shutdown.
type Server struct {
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a stopped API server. Defaults are applied so servers
// built directly in tests behave like configured ones.
func NewServer(config APIConfig, svc Services) (*Server, error) {
	config.ApplyDefaults()

	secret := config.GetJWTSecret()
	if secret == "" {
		return nil, ErrNoJWTSecret
	}
	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               secret,
		AccessTokenDuration:  config.JWT.AccessTokenDuration,
		RefreshTokenDuration: config.JWT.RefreshTokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewRouter(config, svc, jwtService),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}, nil
}

// Handler returns the router, for mounting in tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("API server failed to listen on %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.Port())
		logger.Debug("API endpoints available",
			"health", fmt.Sprintf("http://localhost:%d/health", s.Port()),
			"api", fmt.Sprintf("http://localhost:%d/api/v1", s.Port()),
		)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// ctx is already done; shutdown needs a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.Err(err))
			return
		}
		logger.Info("API server stopped gracefully")
	})
	return shutdownErr
}

// Port returns the bound port once listening, else the configured one.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}
