package jobs

import (
	"context"
	"time"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/metrics"
)

// Export uploads the next page of attachments, each with its size
// variants. Nothing is forced and failures are reported, never queued.
func (r *Runner) Export(ctx context.Context, page Page) (*Report, error) {
	ctx, span := telemetry.StartJobSpan(ctx, telemetry.SpanJobExport, page.Limit, page.Offset)
	defer span.End()

	total, err := r.host.CountAttachments(ctx)
	if err != nil {
		return nil, err
	}
	attachments, err := r.host.ListAttachments(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, a := range attachments {
		files = append(files, r.layout.AttachmentFiles(a)...)
	}

	report := &Report{Count: len(attachments), Total: total, Results: r.upload(ctx, files)}
	logger.DebugCtx(ctx, "Exported attachments page",
		logger.KeyOffset, page.Offset,
		logger.KeyCount, report.Count,
		logger.KeyTotal, report.Total)
	return report, nil
}

// ExportFiles uploads the page of files, a site-relative list the caller
// keeps between calls.
func (r *Runner) ExportFiles(ctx context.Context, files []string, page Page) (*Report, error) {
	ctx, span := telemetry.StartJobSpan(ctx, telemetry.SpanJobExport, page.Limit, page.Offset)
	defer span.End()

	start := min(page.Offset, len(files))
	end := len(files)
	if page.Limit > 0 {
		end = min(start+page.Limit, len(files))
	}
	batch := files[start:end]

	return &Report{Count: len(batch), Total: len(files), Results: r.upload(ctx, batch)}, nil
}

func (r *Runner) upload(ctx context.Context, rels []string) []Item {
	if len(rels) == 0 {
		return []Item{}
	}
	cmd := cdn.CommandUpload.String()
	start := time.Now()
	_, results := r.backend.Upload(ctx, r.layout.Files(rels), false)
	metrics.ObserveBatch(r.metrics, cmd, len(rels), time.Since(start))
	for _, res := range results {
		metrics.RecordResult(r.metrics, cmd, res.Outcome.String())
	}
	return resultItems(results)
}
