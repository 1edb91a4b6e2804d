// Package archive moves finalized runs past the retention window out of the
// run ledger's hot path and into S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds the object storage connection settings.
type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty"`
	StorageClass    string `yaml:"storage_class"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	RetryMaxAttempts int   `yaml:"retry_max_attempts"`
}

// DefaultS3Config returns the default object storage settings.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:           "us-east-1",
		Bucket:           "remsim-archive",
		Prefix:           "runs/",
		StorageClass:     "STANDARD_IA",
		RetryMaxAttempts: 3,
	}
}

// Validate checks the object storage settings.
func (c S3Config) Validate() error {
	if c.Region == "" {
		return errors.New("archive: region is required")
	}
	if c.Bucket == "" {
		return errors.New("archive: bucket is required")
	}
	return nil
}

func (c S3Config) storageClass() types.StorageClass {
	switch c.StorageClass {
	case "STANDARD":
		return types.StorageClassStandard
	case "STANDARD_IA":
		return types.StorageClassStandardIa
	case "INTELLIGENT_TIERING":
		return types.StorageClassIntelligentTiering
	case "GLACIER":
		return types.StorageClassGlacier
	case "DEEP_ARCHIVE":
		return types.StorageClassDeepArchive
	default:
		return types.StorageClassStandardIa
	}
}

// S3Client uploads archived run objects.
type S3Client struct {
	client *s3.Client
	cfg    S3Config
	logger *slog.Logger

	objectsUploaded atomic.Int64
	bytesUploaded   atomic.Int64
}

// NewS3Client creates the object storage client. Static credentials are used
// when configured, the ambient IAM chain otherwise.
func NewS3Client(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}
	if cfg.RetryMaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.RetryMaxAttempts))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	logger.Info("archive s3 client initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"storage_class", cfg.StorageClass,
	)

	return &S3Client{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Put uploads one archived run object under the configured prefix.
func (c *S3Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	fullKey := c.cfg.Prefix + key

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.cfg.Bucket),
		Key:          aws.String(fullKey),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		StorageClass: c.cfg.storageClass(),
	})
	if err != nil {
		return fmt.Errorf("archive: failed to upload %s: %w", fullKey, err)
	}

	c.objectsUploaded.Add(1)
	c.bytesUploaded.Add(int64(len(body)))
	c.logger.Debug("uploaded archive object", "key", fullKey, "size", len(body))
	return nil
}

// Stats returns upload counters for monitoring.
func (c *S3Client) Stats() (objects, bytesTotal int64) {
	return c.objectsUploaded.Load(), c.bytesUploaded.Load()
}

// HealthCheck verifies the bucket is reachable.
func (c *S3Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("archive: bucket unreachable: %w", err)
	}
	return nil
}
