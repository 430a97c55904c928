// Package minio implements an engine for S3-compatible object stores
// (MinIO, Ceph RGW, Wasabi and similar) using the MinIO client.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

const engine = "minio"

// Config holds configuration for the MinIO engine.
type Config struct {
	// Endpoint is the server URL; an http scheme disables TLS.
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`

	// CNAMEs replace the path-style endpoint domain when set.
	CNAMEs []string `mapstructure:"cnames" yaml:"cnames"`
	SSL    bool     `mapstructure:"ssl" yaml:"ssl"`
}

// Validate checks the fields required before any network call.
func (c Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return cdn.NewValidationError(engine, "endpoint", "empty endpoint")
	case c.AccessKey == "":
		return cdn.NewValidationError(engine, "access_key", "empty access key")
	case c.SecretKey == "":
		return cdn.NewValidationError(engine, "secret_key", "empty secret key")
	case c.Bucket == "":
		return cdn.NewValidationError(engine, "bucket", "empty bucket")
	}
	return nil
}

// Backend is the MinIO engine.
type Backend struct {
	cfg Config

	mu     sync.Mutex
	client *minio.Client
}

var (
	_ cdn.Backend          = (*Backend)(nil)
	_ cdn.ContainerCreator = (*Backend)(nil)
)

// New creates the engine. The client is built on first use.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Engine implements cdn.Named
func (b *Backend) Engine() string { return engine }

func (b *Backend) getClient() (*minio.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	u, err := url.Parse(b.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	client, err := minio.New(u.Host, &minio.Options{
		Region: b.cfg.Region,
		Creds:  credentials.NewStaticV4(b.cfg.AccessKey, b.cfg.SecretKey, ""),
		Secure: u.Scheme != "http",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup client: %w", err)
	}
	b.client = client
	return client, nil
}

type session struct {
	client *minio.Client
	bucket string
}

func (b *Backend) open(ctx context.Context) (session, error) {
	if err := b.cfg.Validate(); err != nil {
		return session{}, err
	}
	client, err := b.getClient()
	if err != nil {
		return session{}, cdn.NewHaltError(engine, err)
	}
	exists, err := client.BucketExists(ctx, b.cfg.Bucket)
	if err != nil {
		return session{}, cdn.NewHaltError(engine, fmt.Errorf("unable to access bucket %s (%v)", b.cfg.Bucket, err))
	}
	if !exists {
		return session{}, cdn.NewHaltError(engine, fmt.Errorf("bucket does not exist: %s", b.cfg.Bucket))
	}
	return session{client: client, bucket: b.cfg.Bucket}, nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Upload implements cdn.Backend
func (b *Backend) Upload(ctx context.Context, files []cdn.File, force bool) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(ctx context.Context, s session, f cdn.File) error {
		if err := cdn.CheckSource(f.Local); err != nil {
			return err
		}
		key := strings.TrimLeft(f.Remote, "/")

		if !force {
			info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
			switch {
			case err == nil:
				same, err := cdn.SameContent(f.Local, info.ETag)
				if err != nil {
					return cdn.NewItemError("get object info", f.Remote, err)
				}
				if same {
					return cdn.ErrAlreadyExists
				}
			case !isNoSuchKey(err):
				return cdn.NewItemError("get object info", f.Remote, err)
			}
		}

		opts := minio.PutObjectOptions{ContentType: mime.TypeByExtension(path.Ext(key))}
		if opts.ContentType == "" {
			opts.ContentType = "application/octet-stream"
		}
		if _, err := s.client.FPutObject(ctx, s.bucket, key, f.Local, opts); err != nil {
			return cdn.NewItemError("put object", f.Remote, err)
		}
		return nil
	})
}

// Delete implements cdn.Backend
func (b *Backend) Delete(ctx context.Context, files []cdn.File) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(ctx context.Context, s session, f cdn.File) error {
		key := strings.TrimLeft(f.Remote, "/")
		if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
			if isNoSuchKey(err) {
				return cdn.NewItemError("delete object", f.Remote, cdn.ErrNotFound)
			}
			return cdn.NewItemError("get object info", f.Remote, err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return cdn.NewItemError("delete object", f.Remote, err)
		}
		return nil
	})
}

// Test implements cdn.Backend
func (b *Backend) Test(ctx context.Context) error {
	s, err := b.open(ctx)
	if err != nil {
		return err
	}

	key := "test_minio_" + uuid.NewString()
	payload := []byte(key)

	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "text/plain"}); err != nil {
		return fmt.Errorf("unable to put object (%v)", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("unable to get object (%v)", err)
	}
	data, err := io.ReadAll(obj)
	_ = obj.Close()
	if err != nil {
		return fmt.Errorf("unable to read object (%v)", err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("unable to delete object (%v)", err)
	}
	if !bytes.Equal(data, payload) {
		return cdn.ErrProbeMismatch
	}
	return nil
}

// Domains returns the CNAMEs, or the endpoint host with the bucket as the
// first path segment.
func (b *Backend) Domains() []string {
	if domains := (cdn.Base{Hosts: b.cfg.CNAMEs}).Domains(); len(domains) > 0 {
		return domains
	}
	u, err := url.Parse(b.cfg.Endpoint)
	if err != nil || u.Host == "" || b.cfg.Bucket == "" {
		return nil
	}
	return []string{u.Host + "/" + b.cfg.Bucket}
}

// FormatURL implements cdn.Backend
func (b *Backend) FormatURL(path string) (string, bool) {
	return cdn.FormatURL(b.Domains(), b.cfg.SSL, path)
}

// Via implements cdn.Backend
func (b *Backend) Via() string {
	return fmt.Sprintf("S3 compatible: %s", cdn.ViaDomains(b.Domains()))
}

// CreateContainer creates the bucket unless it already exists.
func (b *Backend) CreateContainer(ctx context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	client, err := b.getClient()
	if err != nil {
		return err
	}

	buckets, err := client.ListBuckets(ctx)
	if err != nil {
		return fmt.Errorf("unable to list containers (%v)", err)
	}
	for _, bucket := range buckets {
		if bucket.Name == b.cfg.Bucket {
			return fmt.Errorf("container already exists: %s", b.cfg.Bucket)
		}
	}

	if err := client.MakeBucket(ctx, b.cfg.Bucket, minio.MakeBucketOptions{Region: b.cfg.Region}); err != nil {
		return fmt.Errorf("unable to create container: %s (%v)", b.cfg.Bucket, err)
	}
	return nil
}
