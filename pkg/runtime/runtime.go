// Package runtime builds every dittocdn component from a loaded
// configuration and runs the long-lived ones.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gorm.io/gorm"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/api"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/cdn/engine"
	"github.com/marmos91/dittocdn/pkg/config"
	"github.com/marmos91/dittocdn/pkg/database"
	"github.com/marmos91/dittocdn/pkg/jobs"
	"github.com/marmos91/dittocdn/pkg/metrics"
	"github.com/marmos91/dittocdn/pkg/metrics/prometheus"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/queue/badger"
	qmemory "github.com/marmos91/dittocdn/pkg/queue/memory"
	"github.com/marmos91/dittocdn/pkg/queue/postgres"
	"github.com/marmos91/dittocdn/pkg/queue/sqlstore"
	"github.com/marmos91/dittocdn/pkg/rewrite"
	"github.com/marmos91/dittocdn/pkg/site"
	"github.com/marmos91/dittocdn/pkg/transfer"
	"github.com/marmos91/dittocdn/pkg/watch"
)

// Runtime owns the components built from one configuration.
type Runtime struct {
	cfg *config.Config

	db          *gorm.DB
	queue       queue.Repository
	queueCloser io.Closer

	backend   cdn.Backend
	catalog   *site.Catalog
	transfers *transfer.Transferrer
	processor *transfer.Processor
	scheduler *transfer.Scheduler
	rewriter  *rewrite.Rewriter
	policy    *rewrite.Policy
	jobs      *jobs.Runner
}

// New builds the runtime. With metrics enabled the Prometheus registry is
// initialized first so the collectors below register against it. Close
// releases what New opened.
func New(ctx context.Context, cfg *config.Config) (rt *Runtime, err error) {
	rt = &Runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	if cfg.Metrics.Enabled && !metrics.IsEnabled() {
		metrics.InitRegistry()
	}
	transferMetrics := prometheus.NewTransferMetrics()
	rewriteMetrics := prometheus.NewRewriteMetrics()

	rt.db, err = database.Open(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if rt.catalog, err = site.NewCatalog(rt.db); err != nil {
		return nil, err
	}
	if rt.queue, rt.queueCloser, err = openQueue(ctx, cfg, rt.db); err != nil {
		return nil, err
	}

	if rt.backend, err = engine.New(cfg.CDN.Config, prometheus.NewBackendMetrics()); err != nil {
		return nil, err
	}
	logger.Info("CDN engine ready", logger.KeyEngine, cdn.EngineName(rt.backend), "via", rt.backend.Via())

	layout := &cfg.Site
	rt.transfers = transfer.NewTransferrer(layout, rt.backend, rt.queue, transferMetrics)
	rt.processor = transfer.NewProcessor(rt.queue, rt.backend, transfer.ProcessorConfig{
		Limit:        cfg.Queue.ProcessLimit,
		Metrics:      transferMetrics,
		QueueMetrics: prometheus.NewQueueMetrics(),
	})
	if cfg.Queue.Interval > 0 {
		rt.scheduler = transfer.NewScheduler(rt.processor, cfg.Queue.Interval)
	}

	if rt.rewriter, err = rewrite.New(cfg.CDN.Groups, layout, rt.backend, rt.queue, rewriteMetrics); err != nil {
		return nil, fmt.Errorf("failed to build rewriter: %w", err)
	}
	if rt.policy, err = rewrite.NewPolicy(cfg.CDN.Reject, rewriteMetrics); err != nil {
		return nil, fmt.Errorf("failed to build reject policy: %w", err)
	}

	rt.jobs, err = jobs.NewRunner(jobs.Config{Import: cfg.Import, Groups: cfg.CDN.Groups}, layout, rt.backend, rt.catalog, transferMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build job runner: %w", err)
	}
	return rt, nil
}

// openQueue returns the configured queue store and what closes it, if
// anything beyond the shared database.
func openQueue(ctx context.Context, cfg *config.Config, db *gorm.DB) (queue.Repository, io.Closer, error) {
	switch cfg.Queue.Type {
	case queue.TypeSQL:
		s, err := sqlstore.New(db)
		return s, nil, err
	case queue.TypePostgres:
		s, err := postgres.Open(ctx, &cfg.Database.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case queue.TypeBadger:
		s, err := badger.Open(cfg.Queue.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case queue.TypeMemory:
		logger.Warn("Using the in-memory queue: failed transfers are lost on exit")
		return qmemory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported queue type: %s", cfg.Queue.Type)
	}
}

// Close releases the queue store and the database.
func (r *Runtime) Close() error {
	var errs []error
	if r.queueCloser != nil {
		errs = append(errs, r.queueCloser.Close())
		r.queueCloser = nil
	}
	if r.db != nil {
		errs = append(errs, database.Close(r.db))
		r.db = nil
	}
	return errors.Join(errs...)
}

func (r *Runtime) Config() *config.Config           { return r.cfg }
func (r *Runtime) Backend() cdn.Backend             { return r.backend }
func (r *Runtime) Queue() queue.Repository          { return r.queue }
func (r *Runtime) Catalog() *site.Catalog           { return r.catalog }
func (r *Runtime) Transfers() *transfer.Transferrer { return r.transfers }
func (r *Runtime) Processor() *transfer.Processor   { return r.processor }
func (r *Runtime) Scheduler() *transfer.Scheduler   { return r.scheduler }
func (r *Runtime) Rewriter() *rewrite.Rewriter      { return r.rewriter }
func (r *Runtime) Policy() *rewrite.Policy          { return r.policy }
func (r *Runtime) Jobs() *jobs.Runner               { return r.jobs }
func (r *Runtime) Layout() *site.Layout             { return &r.cfg.Site }
func (r *Runtime) NewWatcher() *watch.Watcher       { return watch.New(r.cfg.Watch, &r.cfg.Site, r.transfers) }

// Services exposes the runtime to the API.
func (r *Runtime) Services() api.Services {
	return api.Services{
		Backend:        r.backend,
		Queue:          r.queue,
		Processor:      r.processor,
		Scheduler:      r.scheduler,
		Transfers:      r.transfers,
		Catalog:        r.catalog,
		Jobs:           r.jobs,
		Rewriter:       r.rewriter,
		Policy:         r.policy,
		ProcessLimit:   r.cfg.Queue.ProcessLimit,
		RewriteMaxBody: r.cfg.Proxy.MaxBody.Int64(),
	}
}
