package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config holds configuration for the S3 upload backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
	// PublicBaseURL, when set, is joined with the object key to form the
	// returned URL. Empty returns s3://bucket/key.
	PublicBaseURL string
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// putObjectAPI is the slice of the S3 client the uploader needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Service uploads files via S3 PutObject.
type S3Service struct {
	config S3Config
	client putObjectAPI
}

// NewS3 creates an S3 upload service.
// Uses AWS SDK default credential chain (env vars, shared config, IAM role).
func NewS3(ctx context.Context, cfg S3Config) (*S3Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("upload: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Service{
		config: cfg,
		client: s3.NewFromConfig(awsConfig, s3Opts...),
	}, nil
}

// Upload stores the body under {prefix}/{sessionID}/{uuid}/{name}.
// The random segment keeps same-named files in one session from colliding.
func (s *S3Service) Upload(ctx context.Context, sessionID, name, contentType string, body io.Reader) (string, error) {
	if sessionID == "" {
		return "", errors.New("upload: empty session ID")
	}
	if name == "" {
		return "", errors.New("upload: empty file name")
	}

	key := path.Join(s.config.Prefix, sessionID, uuid.NewString(), path.Base(name))

	input := &s3.PutObjectInput{
		Bucket: &s.config.Bucket,
		Key:    &key,
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = &contentType
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload: put %s: %w", key, err)
	}

	if s.config.PublicBaseURL != "" {
		return strings.TrimRight(s.config.PublicBaseURL, "/") + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, key), nil
}

// Close releases service resources.
func (s *S3Service) Close() error { return nil }

// Verify S3Service implements the upload interface.
var _ Service = (*S3Service)(nil)
