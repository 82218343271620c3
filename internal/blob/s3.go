package blob

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/kozaktomas/face-search/internal/config"
)

// S3Store stores objects in an S3 compatible bucket (AWS or MinIO).
type S3Store struct {
	client  *s3.S3
	bucket  string
	expiry  time.Duration
	timeout time.Duration
}

// NewS3Store creates a client for the configured endpoint using path-style addressing.
func NewS3Store(cfg *config.StorageConfig) (*S3Store, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(true).
		WithDisableSSL(!cfg.Secure)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			scheme := "http://"
			if cfg.Secure {
				scheme = "https://"
			}
			endpoint = scheme + endpoint
		}
		awsCfg = awsCfg.WithEndpoint(endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating S3 session: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &S3Store{
		client:  s3.New(sess),
		bucket:  cfg.Bucket,
		expiry:  expiry,
		timeout: cfg.Timeout,
	}, nil
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureBucket creates the bucket if it does not exist.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.RequestFailure); !ok || aerr.StatusCode() != 404 {
		return fmt.Errorf("%w: checking bucket %s: %w", ErrUnavailable, s.bucket, err)
	}

	if _, err := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("%w: creating bucket %s: %w", ErrUnavailable, s.bucket, err)
	}
	log.Printf("Created bucket %s", s.bucket)
	return nil
}

// Put uploads data under name, which becomes the returned path.
func (s *S3Store) Put(ctx context.Context, data []byte, name, contentType string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("%w: put %s: %w", ErrUnavailable, name, err)
	}
	return name, nil
}

// URL returns a presigned GET URL valid for the configured expiry.
func (s *S3Store) URL(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	url, err := req.Presign(s.expiry)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", path, err)
	}
	return url, nil
}
