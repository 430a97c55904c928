// Package s3 implements the Amazon S3 engine. Objects are published with a
// public-read ACL and served either from the bucket endpoint or from the
// configured CNAMEs.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

const engine = "s3"

// Config holds configuration for the S3 engine.
type Config struct {
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ForcePathStyle forces path-style addressing (required for Localstack).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	// CNAMEs replace the bucket domain when set.
	CNAMEs []string `mapstructure:"cnames" yaml:"cnames"`
	SSL    bool     `mapstructure:"ssl" yaml:"ssl"`

	// CacheControl is sent with every uploaded object when non-empty.
	CacheControl string `mapstructure:"cache_control" yaml:"cache_control"`

	// Private disables the public-read ACL.
	Private bool `mapstructure:"private" yaml:"private"`
}

// Validate checks the fields required before any network call.
func (c Config) Validate() error {
	switch {
	case c.AccessKey == "":
		return cdn.NewValidationError(engine, "access_key", "empty access key")
	case c.SecretKey == "":
		return cdn.NewValidationError(engine, "secret_key", "empty secret key")
	case c.Bucket == "":
		return cdn.NewValidationError(engine, "bucket", "empty bucket")
	}
	return nil
}

// Backend is the S3 engine.
type Backend struct {
	cfg Config

	mu     sync.Mutex
	client *s3.Client
}

var (
	_ cdn.Backend          = (*Backend)(nil)
	_ cdn.ContainerCreator = (*Backend)(nil)
)

// New creates the engine. The client is built on first use.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// NewWithClient creates the engine around an existing client.
func NewWithClient(client *s3.Client, cfg Config) *Backend {
	return &Backend{cfg: cfg, client: client}
}

// Engine implements cdn.Named
func (b *Backend) Engine() string { return engine }

// Bucket returns the configured bucket name.
func (b *Backend) Bucket() string { return b.cfg.Bucket }

func (b *Backend) getClient(ctx context.Context) (*s3.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			b.cfg.AccessKey, b.cfg.SecretKey, "",
		)),
	}
	if b.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(b.cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if b.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(b.cfg.Endpoint)
		})
	}
	if b.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	b.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return b.client, nil
}

type session struct {
	client *s3.Client
	bucket string
}

// open validates the config and checks the bucket is reachable.
func (b *Backend) open(ctx context.Context) (session, error) {
	if err := b.cfg.Validate(); err != nil {
		return session{}, err
	}
	client, err := b.getClient(ctx)
	if err != nil {
		return session{}, cdn.NewHaltError(engine, err)
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.cfg.Bucket)}); err != nil {
		return session{}, cdn.NewHaltError(engine, fmt.Errorf("unable to access bucket %s (%v)", b.cfg.Bucket, err))
	}
	return session{client: client, bucket: b.cfg.Bucket}, nil
}

func objectKey(remote string) string {
	return strings.TrimLeft(remote, "/")
}

// Upload implements cdn.Backend
func (b *Backend) Upload(ctx context.Context, files []cdn.File, force bool) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(ctx context.Context, s session, f cdn.File) error {
		if err := cdn.CheckSource(f.Local); err != nil {
			return err
		}
		key := objectKey(f.Remote)

		if !force {
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			switch {
			case err == nil:
				same, err := cdn.SameContent(f.Local, aws.ToString(head.ETag))
				if err != nil {
					return cdn.NewItemError("get object info", f.Remote, err)
				}
				if same {
					return cdn.ErrAlreadyExists
				}
			case !isNotFoundError(err):
				return cdn.NewItemError("get object info", f.Remote, err)
			}
		}

		return b.put(ctx, s, f.Local, key)
	})
}

func (b *Backend) put(ctx context.Context, s session, local, key string) error {
	file, err := os.Open(local)
	if err != nil {
		return cdn.NewItemError("put object", key, err)
	}
	defer func() { _ = file.Close() }()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if b.cfg.CacheControl != "" {
		input.CacheControl = aws.String(b.cfg.CacheControl)
	}
	if !b.cfg.Private {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return cdn.NewItemError("put object", key, err)
	}
	return nil
}

// Delete implements cdn.Backend. S3 reports success for missing keys, so
// the object is looked up first.
func (b *Backend) Delete(ctx context.Context, files []cdn.File) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(ctx context.Context, s session, f cdn.File) error {
		key := objectKey(f.Remote)
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFoundError(err) {
				return cdn.NewItemError("delete object", f.Remote, cdn.ErrNotFound)
			}
			return cdn.NewItemError("get object info", f.Remote, err)
		}

		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
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

	key := "test_s3_" + uuid.NewString()
	payload := []byte(key)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	}); err != nil {
		return fmt.Errorf("unable to put object (%v)", err)
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("unable to get object (%v)", err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("unable to read object (%v)", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("unable to delete object (%v)", err)
	}

	if !bytes.Equal(data, payload) {
		return cdn.ErrProbeMismatch
	}
	return nil
}

// Domains returns the CNAMEs, or the bucket's virtual-host domain.
func (b *Backend) Domains() []string {
	if domains := (cdn.Base{Hosts: b.cfg.CNAMEs}).Domains(); len(domains) > 0 {
		return domains
	}
	if b.cfg.Bucket == "" {
		return nil
	}
	return []string{b.cfg.Bucket + ".s3.amazonaws.com"}
}

// FormatURL implements cdn.Backend
func (b *Backend) FormatURL(path string) (string, bool) {
	return cdn.FormatURL(b.Domains(), b.cfg.SSL, path)
}

// Via implements cdn.Backend
func (b *Backend) Via() string {
	return fmt.Sprintf("Amazon Simple Storage Service (S3): %s", cdn.ViaDomains(b.Domains()))
}

// CreateContainer creates the bucket unless it already exists.
func (b *Backend) CreateContainer(ctx context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	client, err := b.getClient(ctx)
	if err != nil {
		return err
	}

	list, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return fmt.Errorf("unable to list containers (%v)", err)
	}
	for _, bucket := range list.Buckets {
		if aws.ToString(bucket.Name) == b.cfg.Bucket {
			return fmt.Errorf("container already exists: %s", b.cfg.Bucket)
		}
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.cfg.Bucket)}
	if b.cfg.Region != "" && b.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.cfg.Region),
		}
	}
	if _, err := client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("unable to create container: %s (%v)", b.cfg.Bucket, err)
	}
	return nil
}

// isNotFoundError checks if an error is an S3 not found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}
