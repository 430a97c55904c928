package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/api"
	"github.com/marmos91/dittocdn/pkg/metrics"
	"github.com/marmos91/dittocdn/pkg/rewrite"
)

// AuxiliaryServer is an HTTP server run alongside the scheduler and the
// watcher: the API, the rewriting proxy and the metrics endpoint.
type AuxiliaryServer interface {
	// Start serves until ctx is cancelled, then shuts down.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Port() int
}

// Serve runs the API, the scheduler and, when enabled, the watcher, the
// proxy and the metrics server until ctx is cancelled or one of them fails.
// A cancelled ctx is a clean exit.
func (r *Runtime) Serve(ctx context.Context) error {
	servers, err := r.servers()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, srv := range servers {
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}

	if r.scheduler != nil {
		r.scheduler.Start(gctx)
	} else {
		logger.Info("Queue scheduler disabled", "reason", "queue.interval is 0")
	}

	if r.cfg.Watch.Enabled {
		w := r.NewWatcher()
		g.Go(func() error { return w.Run(gctx) })
	}

	logger.Info("dittocdn is running. Press Ctrl+C to stop.")
	err = g.Wait()

	if r.scheduler != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
		defer cancel()
		if stopErr := r.scheduler.Stop(stopCtx); stopErr != nil {
			logger.Warn("Scheduler did not stop in time", logger.Err(stopErr))
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runtime) servers() (map[string]AuxiliaryServer, error) {
	cfg := r.cfg
	servers := make(map[string]AuxiliaryServer)

	if cfg.API.IsEnabled() {
		srv, err := api.NewServer(cfg.API, r.Services())
		if err != nil {
			return nil, err
		}
		servers["api"] = srv
	} else {
		logger.Info("API server disabled")
	}

	if cfg.Proxy.Enabled {
		origin, err := url.Parse(cfg.Proxy.Origin)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy origin: %w", err)
		}
		proxy := rewrite.NewProxy(origin, r.rewriter, r.policy, cfg.Proxy.MaxBody.Int64())
		servers["proxy"] = newHTTPServer("proxy", cfg.Proxy.Listen, proxy, cfg.ShutdownTimeout)
		logger.Info("Rewriting proxy enabled", "listen", cfg.Proxy.Listen, "origin", cfg.Proxy.Origin)
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers["metrics"] = newHTTPServer("metrics", fmt.Sprintf(":%d", cfg.Metrics.Port), mux, cfg.ShutdownTimeout)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}
	return servers, nil
}

// httpServer is a plain AuxiliaryServer around a handler.
type httpServer struct {
	name            string
	srv             *http.Server
	shutdownTimeout time.Duration
	shutdownOnce    sync.Once

	mu   sync.Mutex
	addr net.Addr
}

func newHTTPServer(name, addr string, h http.Handler, shutdownTimeout time.Duration) *httpServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &httpServer{
		name: name,
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

func (s *httpServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	logger.Info("Server listening", "server", s.name, "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *httpServer) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.srv.Shutdown(ctx)
		if err == nil {
			logger.Info("Server stopped", "server", s.name)
		}
	})
	return err
}

func (s *httpServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tcp, ok := s.addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
