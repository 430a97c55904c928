package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/metrics"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/site"
)

// Transferrer runs foreground transfers of site-relative files, optionally
// queueing whatever did not succeed.
type Transferrer struct {
	layout  *site.Layout
	backend cdn.Backend
	repo    queue.Repository
	metrics metrics.TransferMetrics
}

// NewTransferrer creates a Transferrer. m may be nil.
func NewTransferrer(layout *site.Layout, backend cdn.Backend, repo queue.Repository, m metrics.TransferMetrics) *Transferrer {
	return &Transferrer{layout: layout, backend: backend, repo: repo, metrics: m}
}

// Layout returns the site layout files are resolved against.
func (t *Transferrer) Layout() *site.Layout { return t.layout }

// Upload uploads files without forcing. With queueFailed, every result
// that is not Ok is added to the queue with its message, except uploads
// the backend already holds.
func (t *Transferrer) Upload(ctx context.Context, files []string, queueFailed bool) (int, []cdn.Result, error) {
	return t.run(ctx, cdn.CommandUpload, files, queueFailed)
}

// Delete removes files from the backend. With queueFailed, every result
// that is not Ok is added to the queue with its message, except deletes of
// objects the backend does not have.
func (t *Transferrer) Delete(ctx context.Context, files []string, queueFailed bool) (int, []cdn.Result, error) {
	return t.run(ctx, cdn.CommandDelete, files, queueFailed)
}

func (t *Transferrer) run(ctx context.Context, cmd cdn.Command, rels []string, queueFailed bool) (int, []cdn.Result, error) {
	if len(rels) == 0 {
		return 0, nil, nil
	}

	spanName := telemetry.SpanUpload
	if cmd == cdn.CommandDelete {
		spanName = telemetry.SpanDelete
	}
	ctx, span := telemetry.StartSpan(ctx, spanName, telemetry.Command(cmd.String()), telemetry.Files(len(rels)))
	defer span.End()

	files := t.layout.Files(rels)
	start := time.Now()
	var (
		count   int
		results []cdn.Result
	)
	if cmd == cdn.CommandUpload {
		count, results = t.backend.Upload(ctx, files, false)
	} else {
		count, results = t.backend.Delete(ctx, files)
	}
	metrics.ObserveBatch(t.metrics, cmd.String(), len(files), time.Since(start))
	telemetry.SetAttributes(ctx, telemetry.Succeeded(count))

	var queued queue.Groups
	for _, r := range results {
		metrics.RecordResult(t.metrics, cmd.String(), r.Outcome.String())
		if r.Outcome == cdn.OutcomeOK {
			continue
		}
		if queueFailed && settled(cmd, r) {
			if queued == nil {
				var err error
				if queued, err = t.repo.Get(ctx, 0); err != nil {
					return count, results, fmt.Errorf("failed to read queue: %w", err)
				}
			}
			if err := t.cancelOpposite(ctx, queued, cmd, r); err != nil {
				return count, results, err
			}
			logger.DebugCtx(ctx, "Backend already in requested state",
				logger.Command(cmd.String()),
				logger.RemotePath(r.RemotePath),
				logger.KeyReason, r.Message)
			continue
		}
		logger.WarnCtx(ctx, "Foreground transfer failed",
			logger.Command(cmd.String()),
			logger.LocalPath(r.LocalPath),
			logger.RemotePath(r.RemotePath),
			logger.KeyReason, r.Message,
			"queued", queueFailed)
		if !queueFailed {
			continue
		}
		if err := t.repo.Add(ctx, r.LocalPath, r.RemotePath, cmd, r.Message); err != nil {
			telemetry.RecordError(ctx, err)
			return count, results, fmt.Errorf("failed to queue %s of %s: %w", cmd, r.RemotePath, err)
		}
	}
	return count, results, nil
}

// cancelOpposite drops a queued opposite command for the pair of r, as
// queueing cmd would have done.
func (t *Transferrer) cancelOpposite(ctx context.Context, queued queue.Groups, cmd cdn.Command, r cdn.Result) error {
	for _, e := range queued[cmd.Opposite()] {
		if e.LocalPath != r.LocalPath || e.RemotePath != r.RemotePath {
			continue
		}
		if err := t.repo.Delete(ctx, e.ID); err != nil {
			return fmt.Errorf("failed to cancel queued %s of %s: %w", e.Command, e.RemotePath, err)
		}
	}
	return nil
}

// settled reports whether a failed result already leaves the backend in the
// requested state, so retrying it could never succeed.
func settled(cmd cdn.Command, r cdn.Result) bool {
	if cmd == cdn.CommandDelete {
		return errors.Is(r.Err, cdn.ErrNotFound)
	}
	return r.IsAlreadyExists()
}
