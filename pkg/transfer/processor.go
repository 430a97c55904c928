// Package transfer moves files between the site and the CDN backend: the
// processor drains the durable queue, the transferrer runs foreground
// batches for attachment hooks and the watcher, and the scheduler drives
// the processor periodically.
package transfer

import (
	"context"
	"time"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/metrics"
	"github.com/marmos91/dittocdn/pkg/queue"
)

// DefaultLimit is the number of queue entries processed per run.
const DefaultLimit = 100

// Halt records a command group that could not reach the backend.
type Halt struct {
	Command cdn.Command `json:"command"`
	Message string      `json:"message"`
	Items   int         `json:"items"`
}

// Report summarizes one processor run.
type Report struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Halts     []Halt       `json:"halts,omitempty"`
	Results   []cdn.Result `json:"results"`
}

// Halted reports whether any group halted.
func (r *Report) Halted() bool {
	return len(r.Halts) > 0
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// Limit caps the entries read per run; 0 uses DefaultLimit.
	Limit int

	Metrics      metrics.TransferMetrics
	QueueMetrics metrics.QueueMetrics
}

// Processor delivers queued transfers to the backend.
type Processor struct {
	repo    queue.Repository
	backend cdn.Backend
	limit   int
	metrics metrics.TransferMetrics
	depth   metrics.QueueMetrics
}

// NewProcessor creates a processor over repo and backend.
func NewProcessor(repo queue.Repository, backend cdn.Backend, cfg ProcessorConfig) *Processor {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Processor{
		repo:    repo,
		backend: backend,
		limit:   cfg.Limit,
		metrics: cfg.Metrics,
		depth:   cfg.QueueMetrics,
	}
}

// Process reads up to limit of the oldest entries (the configured limit
// when limit <= 0) and sends each command group to the backend in one call.
// Successful entries are deleted, failed ones re-aged with their message,
// and halted groups are left untouched for the next run.
func (p *Processor) Process(ctx context.Context, limit int) (*Report, error) {
	if limit <= 0 {
		limit = p.limit
	}

	engine := cdn.EngineName(p.backend)
	lc := logger.NewLogContext("process").WithEngine(engine)
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanProcess, telemetry.Engine(engine))
	defer span.End()
	lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	groups, err := p.repo.Get(ctx, limit)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	report := &Report{Results: make([]cdn.Result, 0, groups.Len())}
	for _, cmd := range cdn.Commands() {
		entries := groups[cmd]
		if len(entries) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := p.processGroup(ctx, cmd, entries, report); err != nil {
			telemetry.RecordError(ctx, err)
			return report, err
		}
	}

	telemetry.SetAttributes(ctx, telemetry.Files(report.Processed), telemetry.Succeeded(report.Succeeded))
	if err := queue.ReportDepth(ctx, p.repo, p.depth); err != nil {
		logger.WarnCtx(ctx, "Failed to report queue depth", logger.Err(err))
	}
	if report.Processed > 0 {
		logger.InfoCtx(ctx, "Queue processed",
			"processed", report.Processed,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"halted", len(report.Halts),
			logger.DurationMs(lc.DurationMs()))
	}
	return report, nil
}

func (p *Processor) processGroup(ctx context.Context, cmd cdn.Command, entries []*queue.Entry, report *Report) error {
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithCommand(cmd.String()))

	files := make([]cdn.File, len(entries))
	ids := make(map[cdn.File]int64, len(entries))
	for i, e := range entries {
		files[i] = e.File()
		ids[files[i]] = e.ID
	}

	start := time.Now()
	var results []cdn.Result
	switch cmd {
	case cdn.CommandUpload:
		_, results = p.backend.Upload(ctx, files, false)
	case cdn.CommandDelete:
		_, results = p.backend.Delete(ctx, files)
	}
	metrics.ObserveBatch(p.metrics, cmd.String(), len(files), time.Since(start))

	report.Processed += len(files)
	report.Results = append(report.Results, results...)

	if halt, ok := cdn.FirstHalt(results); ok {
		report.Halts = append(report.Halts, Halt{Command: cmd, Message: halt.Message, Items: len(files)})
		metrics.RecordHalt(p.metrics, cmd.String())
		logger.ErrorCtx(ctx, "Transfer halted, entries left queued",
			logger.KeyCount, len(files),
			logger.KeyReason, halt.Message)
	}

	for _, r := range results {
		metrics.RecordResult(p.metrics, cmd.String(), r.Outcome.String())

		id, ok := ids[cdn.File{Local: r.LocalPath, Remote: r.RemotePath}]
		if !ok {
			continue
		}
		switch r.Outcome {
		case cdn.OutcomeOK:
			report.Succeeded++
			if err := p.repo.Delete(ctx, id); err != nil {
				return err
			}
		case cdn.OutcomeError:
			report.Failed++
			logger.WarnCtx(ctx, "Transfer failed",
				logger.LocalPath(r.LocalPath),
				logger.RemotePath(r.RemotePath),
				logger.KeyReason, r.Message)
			if err := p.repo.Update(ctx, id, r.Message); err != nil {
				return err
			}
		}
	}
	return nil
}
