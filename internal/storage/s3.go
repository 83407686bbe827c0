package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"folderzip/internal/circuitbreaker"
	appconfig "folderzip/internal/config"
	"folderzip/internal/metrics"
)

// S3Provider implements Provider for S3-compatible storage
type S3Provider struct {
	client         *s3.Client
	bucket         string
	circuitBreaker *circuitbreaker.Breaker
	metrics        *metrics.Metrics
	fetchTimeout   time.Duration
	maxRetries     int
	retryDelay     time.Duration
}

// NewS3Provider creates a new S3-compatible storage provider
func NewS3Provider(ctx context.Context, cfg *appconfig.Config, m *metrics.Metrics, cb *circuitbreaker.Breaker) (*S3Provider, error) {
	if cfg.StorageBucket == "" {
		return nil, fmt.Errorf("STORAGE_BUCKET required for s3 storage")
	}

	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	cfgOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	// Static credentials (typical for MinIO and many S3-compatible providers)
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKeyID,
				cfg.S3SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
		// Custom endpoint (MinIO, Supabase storage, R2, ...)
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	return &S3Provider{
		client:         client,
		bucket:         cfg.StorageBucket,
		circuitBreaker: cb,
		metrics:        m,
		fetchTimeout:   cfg.StorageFetchTimeout,
		maxRetries:     cfg.StorageMaxRetries,
		retryDelay:     cfg.StorageRetryDelay,
	}, nil
}

// Type implements Provider
func (s *S3Provider) Type() string { return "s3" }

// GetObject retrieves an object from the configured bucket
func (s *S3Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	resultLabel := "error"
	defer func() {
		s.metrics.StorageFetchDuration.WithLabelValues("s3", resultLabel).Observe(time.Since(start).Seconds())
	}()

	s.metrics.ActiveFileFetches.Inc()
	defer s.metrics.ActiveFileFetches.Dec()

	result, err := s.circuitBreaker.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 0; attempt <= s.maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff(s.retryDelay, attempt)):
				}
			}

			fetchCtx, cancel := ctx, context.CancelFunc(func() {})
			if s.fetchTimeout > 0 {
				fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
			}
			output, err := s.client.GetObject(fetchCtx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			if err == nil {
				return &cancelOnClose{ReadCloser: output.Body, cancel: cancel}, nil
			}
			cancel()

			lastErr = err
			if !isRetryableError(err) {
				break
			}
		}

		if isClientError(lastErr) {
			return nil, fmt.Errorf("%w: %w", circuitbreaker.ErrNotCounted, lastErr)
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}

	resultLabel = "success"
	return result.(io.ReadCloser), nil
}

// isClientError reports S3 errors caused by the request, not the store
func isClientError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "AccessDenied", "InvalidObjectState", "NoSuchBucket":
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultClient
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// Missing keys and permission problems will not fix themselves
	return !isClientError(err)
}

// HealthCheck verifies the attachment bucket is reachable
func (s *S3Provider) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(checkCtx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3 connectivity check failed: %w", err)
	}
	return nil
}
