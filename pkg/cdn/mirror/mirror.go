// Package mirror implements the origin-pull engine: the CDN fetches assets
// from the site itself, so transfers have nothing to move and only URLs
// change. A mirror can also decorate another backend, delegating transfers
// to it while serving the wrapped backend's paths from the mirror domains.
package mirror

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

const engine = "mirror"

// Config configures the mirror engine.
type Config struct {
	Domains []string `mapstructure:"domains" yaml:"domains"`
	SSL     bool     `mapstructure:"ssl" yaml:"ssl"`
}

// Backend is the mirror engine.
type Backend struct {
	cdn.Base
	inner cdn.Backend
}

var _ cdn.Backend = (*Backend)(nil)

// New creates a mirror serving from cfg.Domains. inner may be nil.
func New(cfg Config, inner cdn.Backend) *Backend {
	return &Backend{Base: cdn.Base{Hosts: cfg.Domains, SSL: cfg.SSL}, inner: inner}
}

// Engine implements cdn.Named
func (b *Backend) Engine() string { return engine }

func (b *Backend) validate() error {
	if len(b.Domains()) == 0 {
		return cdn.NewValidationError(engine, "domains", "empty domain")
	}
	return nil
}

// Upload delegates to the wrapped backend, or succeeds without transfer.
func (b *Backend) Upload(ctx context.Context, files []cdn.File, force bool) (int, []cdn.Result) {
	if err := b.validate(); err != nil {
		return cdn.HaltAll(files, err)
	}
	if b.inner != nil {
		return b.inner.Upload(ctx, files, force)
	}
	return b.pass(files)
}

// Delete delegates to the wrapped backend, or succeeds without transfer.
func (b *Backend) Delete(ctx context.Context, files []cdn.File) (int, []cdn.Result) {
	if err := b.validate(); err != nil {
		return cdn.HaltAll(files, err)
	}
	if b.inner != nil {
		return b.inner.Delete(ctx, files)
	}
	return b.pass(files)
}

func (b *Backend) pass(files []cdn.File) (int, []cdn.Result) {
	results := make([]cdn.Result, len(files))
	for i, f := range files {
		results[i] = cdn.OK(f)
	}
	return len(files), results
}

// Test checks the configuration and the wrapped backend.
func (b *Backend) Test(ctx context.Context) error {
	if err := b.validate(); err != nil {
		return err
	}
	for _, d := range b.Domains() {
		if strings.Contains(d, "/") {
			return cdn.NewValidationError(engine, "domains", fmt.Sprintf("invalid domain: %s", d))
		}
	}
	if b.inner != nil {
		return b.inner.Test(ctx)
	}
	return nil
}

// FormatURL swaps the domain. With a wrapped backend, paths it declines are
// declined too.
func (b *Backend) FormatURL(path string) (string, bool) {
	if b.inner != nil {
		if _, ok := b.inner.FormatURL(path); !ok {
			return "", false
		}
	}
	return b.Base.FormatURL(path)
}

// Via implements cdn.Backend
func (b *Backend) Via() string {
	if b.inner != nil {
		return fmt.Sprintf("Mirror: %s", b.inner.Via())
	}
	return fmt.Sprintf("Mirror: %s", b.Base.Via())
}
