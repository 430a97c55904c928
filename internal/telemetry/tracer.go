package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by transfer, job and rewrite spans.
const (
	AttrEngine     = "cdn.engine"
	AttrCommand    = "cdn.command"
	AttrLocalPath  = "cdn.local_path"
	AttrRemotePath = "cdn.remote_path"
	AttrFiles      = "cdn.files"
	AttrSucceeded  = "cdn.succeeded"
	AttrHalted     = "cdn.halted"
	AttrBucket     = "storage.bucket"
	AttrHost       = "storage.host"

	AttrJob    = "job.name"
	AttrLimit  = "job.limit"
	AttrOffset = "job.offset"
	AttrCount  = "job.count"
	AttrTotal  = "job.total"

	AttrRewriteBytes    = "rewrite.bytes"
	AttrRewriteReplaced = "rewrite.replaced"
)

// Span names
const (
	SpanProcess       = "transfer.process"
	SpanUpload        = "transfer.upload"
	SpanDelete        = "transfer.delete"
	SpanJobExport     = "jobs.export"
	SpanJobImport     = "jobs.import"
	SpanJobRename     = "jobs.rename"
	SpanRewrite       = "rewrite.render"
	SpanBackendPrefix = "cdn."
)

// Engine returns the engine attribute
func Engine(name string) attribute.KeyValue {
	return attribute.String(AttrEngine, name)
}

// Command returns the transfer command attribute
func Command(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

// Files returns the attribute for the number of files in a batch
func Files(n int) attribute.KeyValue {
	return attribute.Int(AttrFiles, n)
}

// Succeeded returns the attribute for the number of Ok results
func Succeeded(n int) attribute.KeyValue {
	return attribute.Int(AttrSucceeded, n)
}

// Bucket returns the storage bucket attribute
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// Host returns the storage host attribute
func Host(name string) attribute.KeyValue {
	return attribute.String(AttrHost, name)
}

// Page returns the paging attributes of a bulk job call
func Page(limit, offset int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLimit, limit),
		attribute.Int(AttrOffset, offset),
	}
}

// StartBackendSpan starts a span named cdn.<engine>.<op>.
func StartBackendSpan(ctx context.Context, engine, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{Engine(engine)}, attrs...)
	return StartSpan(ctx, SpanBackendPrefix+engine+"."+op, attrs...)
}

// StartJobSpan starts a span for one page of a bulk job.
func StartJobSpan(ctx context.Context, name string, limit, offset int) (context.Context, trace.Span) {
	attrs := append([]attribute.KeyValue{attribute.String(AttrJob, name)}, Page(limit, offset)...)
	return StartSpan(ctx, name, attrs...)
}
