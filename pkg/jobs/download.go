package jobs

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/marmos91/dittocdn/internal/bufpool"
	"github.com/marmos91/dittocdn/internal/logger"
)

// DefaultImportFiles is the default mask of imported references.
const DefaultImportFiles = "*.jpg;*.jpeg;*.png;*.gif;*.pdf"

// ImportConfig configures the import job.
type ImportConfig struct {
	// Files is the mask a reference must end with to be imported.
	Files string `mapstructure:"files" yaml:"files"`

	// External enables downloading references to other hosts.
	External bool `mapstructure:"external" yaml:"external"`

	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries int           `mapstructure:"retries" yaml:"retries" validate:"gte=0"`
}

// ApplyDefaults fills unset fields.
func (c *ImportConfig) ApplyDefaults() {
	if c.Files == "" {
		c.Files = DefaultImportFiles
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retries == 0 {
		c.Retries = 3
	}
}

// Downloader fetches external files with retries.
type Downloader struct {
	client  *http.Client
	retries int

	// initialInterval is the first retry delay.
	initialInterval time.Duration
}

// NewDownloader creates a Downloader from cfg.
func NewDownloader(cfg ImportConfig) *Downloader {
	return &Downloader{
		client:          &http.Client{Timeout: cfg.Timeout},
		retries:         cfg.Retries,
		initialInterval: 500 * time.Millisecond,
	}
}

// Download writes url to dst. Server errors and network failures are
// retried with exponential backoff; client errors are not.
func (d *Downloader) Download(ctx context.Context, url, dst string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initialInterval

	attempt := 0
	op := func() error {
		attempt++
		err := d.fetch(ctx, url, dst)
		if err != nil {
			logger.DebugCtx(ctx, "Download attempt failed", logger.KeyURL, url, logger.KeyAttempt, attempt, logger.Err(err))
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.retries)), ctx))
}

func (d *Downloader) fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("GET %s: %s", url, resp.Status))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return backoff.Permanent(err)
	}
	tmp := dst + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return backoff.Permanent(err)
	}
	if _, err := bufpool.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
