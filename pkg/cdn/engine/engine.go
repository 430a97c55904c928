// Package engine builds the configured cdn.Backend. The backend is created
// once at startup and injected into every consumer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/cdn/cloudfront"
	"github.com/marmos91/dittocdn/pkg/cdn/fs"
	"github.com/marmos91/dittocdn/pkg/cdn/ftp"
	"github.com/marmos91/dittocdn/pkg/cdn/memory"
	"github.com/marmos91/dittocdn/pkg/cdn/minio"
	"github.com/marmos91/dittocdn/pkg/cdn/mirror"
	"github.com/marmos91/dittocdn/pkg/cdn/s3"
	"github.com/marmos91/dittocdn/pkg/metrics"
)

// Engine names
const (
	Mirror     = "mirror"
	FTP        = "ftp"
	S3         = "s3"
	CloudFront = "cloudfront"
	MinIO      = "minio"
	FS         = "fs"
	Memory     = "memory"
)

// Names lists every supported engine.
func Names() []string {
	return []string{Mirror, FTP, S3, CloudFront, MinIO, FS, Memory}
}

// ErrNoContainer is returned by CreateContainer for engines without a
// container concept.
var ErrNoContainer = errors.New("engine does not support container creation")

// Config selects an engine and carries one block per engine. Only the
// selected block is read.
type Config struct {
	Engine string `mapstructure:"engine" yaml:"engine" validate:"required,oneof=mirror ftp s3 cloudfront minio fs memory"`

	// SSL forces https URLs regardless of the engine block's own setting.
	SSL bool `mapstructure:"ssl" yaml:"ssl"`

	Mirror     mirror.Config     `mapstructure:"mirror" yaml:"mirror"`
	FTP        ftp.Config        `mapstructure:"ftp" yaml:"ftp"`
	S3         s3.Config         `mapstructure:"s3" yaml:"s3"`
	CloudFront cloudfront.Config `mapstructure:"cloudfront" yaml:"cloudfront"`
	MinIO      minio.Config      `mapstructure:"minio" yaml:"minio"`
	FS         fs.Config         `mapstructure:"fs" yaml:"fs"`

	// MemoryDomains are served by the in-process engine.
	MemoryDomains []string `mapstructure:"memory_domains" yaml:"memory_domains"`
}

// New builds the engine named by cfg.Engine and instruments it. m may be nil.
func New(cfg Config, m metrics.BackendMetrics) (cdn.Backend, error) {
	var b cdn.Backend

	switch strings.ToLower(cfg.Engine) {
	case Mirror:
		c := cfg.Mirror
		c.SSL = c.SSL || cfg.SSL
		b = mirror.New(c, nil)
	case FTP:
		c := cfg.FTP
		c.SSL = c.SSL || cfg.SSL
		b = ftp.New(c)
	case S3:
		c := cfg.S3
		c.SSL = c.SSL || cfg.SSL
		b = s3.New(c)
	case CloudFront:
		c := cfg.CloudFront
		c.SSL = c.SSL || cfg.SSL
		b = cloudfront.New(c)
	case MinIO:
		c := cfg.MinIO
		c.SSL = c.SSL || cfg.SSL
		b = minio.New(c)
	case FS:
		c := cfg.FS
		c.SSL = c.SSL || cfg.SSL
		b = fs.New(c)
	case Memory:
		mb := memory.New(cfg.MemoryDomains...)
		mb.SSL = cfg.SSL
		b = mb
	default:
		return nil, fmt.Errorf("unknown cdn engine %q (valid: %s)", cfg.Engine, strings.Join(Names(), ", "))
	}

	logger.Debug("CDN engine created", logger.KeyEngine, cfg.Engine, "via", b.Via())
	return Instrument(b, m), nil
}

// Instrumented wraps a backend with tracing spans, metrics and logging.
type Instrumented struct {
	inner   cdn.Backend
	engine  string
	metrics metrics.BackendMetrics
}

var (
	_ cdn.Backend          = (*Instrumented)(nil)
	_ cdn.ContainerCreator = (*Instrumented)(nil)
)

// Instrument wraps b. m may be nil.
func Instrument(b cdn.Backend, m metrics.BackendMetrics) *Instrumented {
	return &Instrumented{inner: b, engine: cdn.EngineName(b), metrics: m}
}

// Unwrap returns the wrapped backend.
func (i *Instrumented) Unwrap() cdn.Backend { return i.inner }

// Engine implements cdn.Named
func (i *Instrumented) Engine() string { return i.engine }

func (i *Instrumented) batch(ctx context.Context, op string, files []cdn.File, run func(context.Context) (int, []cdn.Result)) (int, []cdn.Result) {
	ctx, span := telemetry.StartBackendSpan(ctx, i.engine, op, telemetry.Files(len(files)))
	defer span.End()

	start := time.Now()
	count, results := run(ctx)
	metrics.ObserveOperation(i.metrics, i.engine, op, time.Since(start), len(results)-count)

	span.SetAttributes(telemetry.Succeeded(count))
	if halt, ok := cdn.FirstHalt(results); ok {
		telemetry.RecordError(ctx, halt.Err)
	}

	logger.DebugCtx(ctx, "CDN batch complete",
		logger.KeyEngine, i.engine,
		logger.KeyCommand, op,
		logger.KeyCount, count,
		logger.KeyTotal, len(files),
		logger.KeyDurationMs, logger.Duration(start))
	return count, results
}

// Upload implements cdn.Backend
func (i *Instrumented) Upload(ctx context.Context, files []cdn.File, force bool) (int, []cdn.Result) {
	return i.batch(ctx, "upload", files, func(ctx context.Context) (int, []cdn.Result) {
		return i.inner.Upload(ctx, files, force)
	})
}

// Delete implements cdn.Backend
func (i *Instrumented) Delete(ctx context.Context, files []cdn.File) (int, []cdn.Result) {
	return i.batch(ctx, "delete", files, func(ctx context.Context) (int, []cdn.Result) {
		return i.inner.Delete(ctx, files)
	})
}

// Test implements cdn.Backend
func (i *Instrumented) Test(ctx context.Context) error {
	ctx, span := telemetry.StartBackendSpan(ctx, i.engine, "test")
	defer span.End()

	start := time.Now()
	err := i.inner.Test(ctx)
	failed := 0
	if err != nil {
		failed = 1
		telemetry.RecordError(ctx, err)
	}
	metrics.ObserveOperation(i.metrics, i.engine, "test", time.Since(start), failed)
	return err
}

// Domains implements cdn.Backend
func (i *Instrumented) Domains() []string { return i.inner.Domains() }

// FormatURL implements cdn.Backend
func (i *Instrumented) FormatURL(path string) (string, bool) { return i.inner.FormatURL(path) }

// Via implements cdn.Backend
func (i *Instrumented) Via() string { return i.inner.Via() }

// CreateContainer delegates to the wrapped backend when it supports it.
func (i *Instrumented) CreateContainer(ctx context.Context) error {
	cc, ok := i.inner.(cdn.ContainerCreator)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoContainer, i.engine)
	}
	ctx, span := telemetry.StartBackendSpan(ctx, i.engine, "create_container")
	defer span.End()

	err := cc.CreateContainer(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}
