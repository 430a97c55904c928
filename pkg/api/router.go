package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/api/auth"
	"github.com/marmos91/dittocdn/pkg/api/handlers"
	apimw "github.com/marmos91/dittocdn/pkg/api/middleware"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/jobs"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/rewrite"
	"github.com/marmos91/dittocdn/pkg/site"
	"github.com/marmos91/dittocdn/pkg/transfer"
)

// Services are the components the API exposes. Scheduler may be nil.
type Services struct {
	Backend   cdn.Backend
	Queue     queue.Repository
	Processor *transfer.Processor
	Scheduler *transfer.Scheduler
	Transfers *transfer.Transferrer
	Catalog   *site.Catalog
	Jobs      *jobs.Runner
	Rewriter  *rewrite.Rewriter
	Policy    *rewrite.Policy

	// ProcessLimit applies to process calls without ?limit=.
	ProcessLimit int

	// RewriteMaxBody bounds POST /rewrite bodies.
	RewriteMaxBody int64
}

// NewRouter creates the chi router with middleware and routes. Everything
// under /api/v1 except the auth endpoints needs an access token.
func NewRouter(cfg APIConfig, svc Services, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()

	// Order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	healthHandler := handlers.NewHealthHandler(svc.Backend, svc.Scheduler)
	authHandler := handlers.NewAuthHandler(auth.Operator{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	}, jwtService)
	backendHandler := handlers.NewBackendHandler(svc.Backend)
	queueHandler := handlers.NewQueueHandler(svc.Queue, svc.Processor, svc.ProcessLimit)
	jobsHandler := handlers.NewJobsHandler(svc.Jobs, svc.Backend)
	rewriteHandler := handlers.NewRewriteHandler(svc.Rewriter, svc.Policy, svc.RewriteMaxBody)
	attachmentHandler := handlers.NewAttachmentHandler(svc.Catalog, svc.Transfers)

	r.Get("/health", healthHandler.Liveness)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(apimw.JWTAuth(jwtService))

			r.Route("/backend", func(r chi.Router) {
				r.Get("/", backendHandler.Get)
				r.Post("/test", backendHandler.Test)
				r.Post("/container", backendHandler.Create)
			})

			r.Route("/queue", func(r chi.Router) {
				r.Get("/", queueHandler.List)
				r.Delete("/", queueHandler.Empty)
				r.Post("/process", queueHandler.Process)
				r.Delete("/{id}", queueHandler.Delete)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/export", jobsHandler.Export)
				r.Get("/export/files", jobsHandler.Files)
				r.Post("/import", jobsHandler.Import)
				r.Post("/rename", jobsHandler.Rename)
			})

			r.Post("/rewrite", rewriteHandler.Rewrite)

			r.Route("/attachments", func(r chi.Router) {
				r.Post("/", attachmentHandler.Create)
				r.Delete("/{id}", attachmentHandler.Delete)
			})
		})
	})

	return r
}

// requestLogger logs each request through the internal logger: start at
// DEBUG, completion at INFO.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			logger.KeyPath, r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			logger.KeyPath, r.URL.Path,
			"status", ww.Status(),
			logger.KeyBytes, ww.BytesWritten(),
			logger.KeyDurationMs, time.Since(start).Milliseconds(),
		)
	})
}
