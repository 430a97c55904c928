// Package cloudfront serves objects stored by the s3 engine through an
// Amazon CloudFront distribution. Transfers go to the origin bucket; URLs
// point at the distribution.
package cloudfront

import (
	"context"
	"fmt"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/cdn/s3"
)

const engine = "cloudfront"

// Config holds configuration for the CloudFront engine.
type Config struct {
	// Origin is the bucket the distribution pulls from.
	Origin s3.Config `mapstructure:"origin" yaml:"origin"`

	// DistributionID is the distribution's host prefix, as in
	// <id>.cloudfront.net.
	DistributionID string   `mapstructure:"distribution_id" yaml:"distribution_id"`
	CNAMEs         []string `mapstructure:"cnames" yaml:"cnames"`
	SSL            bool     `mapstructure:"ssl" yaml:"ssl"`
}

// Backend decorates an s3 origin.
type Backend struct {
	cfg    Config
	origin *s3.Backend
}

var (
	_ cdn.Backend          = (*Backend)(nil)
	_ cdn.ContainerCreator = (*Backend)(nil)
)

// New creates the engine with its own s3 origin.
func New(cfg Config) *Backend {
	return Wrap(cfg, s3.New(cfg.Origin))
}

// Wrap decorates an existing origin.
func Wrap(cfg Config, origin *s3.Backend) *Backend {
	return &Backend{cfg: cfg, origin: origin}
}

// Engine implements cdn.Named
func (b *Backend) Engine() string { return engine }

func (b *Backend) validate() error {
	if b.cfg.DistributionID == "" && len((cdn.Base{Hosts: b.cfg.CNAMEs}).Domains()) == 0 {
		return cdn.NewValidationError(engine, "distribution_id", "empty distribution domain")
	}
	return nil
}

// Upload implements cdn.Backend
func (b *Backend) Upload(ctx context.Context, files []cdn.File, force bool) (int, []cdn.Result) {
	if err := b.validate(); err != nil {
		return cdn.HaltAll(files, err)
	}
	return b.origin.Upload(ctx, files, force)
}

// Delete implements cdn.Backend
func (b *Backend) Delete(ctx context.Context, files []cdn.File) (int, []cdn.Result) {
	if err := b.validate(); err != nil {
		return cdn.HaltAll(files, err)
	}
	return b.origin.Delete(ctx, files)
}

// Test implements cdn.Backend
func (b *Backend) Test(ctx context.Context) error {
	if err := b.validate(); err != nil {
		return err
	}
	return b.origin.Test(ctx)
}

// Domains returns the CNAMEs, or <id>.cloudfront.net.
func (b *Backend) Domains() []string {
	if domains := (cdn.Base{Hosts: b.cfg.CNAMEs}).Domains(); len(domains) > 0 {
		return domains
	}
	if b.cfg.DistributionID == "" {
		return nil
	}
	return []string{b.cfg.DistributionID + ".cloudfront.net"}
}

// FormatURL implements cdn.Backend
func (b *Backend) FormatURL(path string) (string, bool) {
	return cdn.FormatURL(b.Domains(), b.cfg.SSL, path)
}

// Via implements cdn.Backend
func (b *Backend) Via() string {
	return fmt.Sprintf("Amazon CloudFront: %s (origin %s)", cdn.ViaDomains(b.Domains()), b.origin.Via())
}

// CreateContainer creates the origin bucket.
func (b *Backend) CreateContainer(ctx context.Context) error {
	return b.origin.CreateContainer(ctx)
}
