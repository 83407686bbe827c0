package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"folderzip/internal/circuitbreaker"
	"folderzip/internal/config"
	"folderzip/internal/metrics"
)

// Provider defines the interface for blob store backends
type Provider interface {
	// GetObject opens the attachment stored under key.
	// Errors are per key; callers treat any error as a failure of that one object.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// HealthCheck performs a lightweight connectivity check
	HealthCheck(ctx context.Context) error

	// Type names the backend for logs and metrics
	Type() string
}

// New creates a new storage provider based on configuration
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, cb *circuitbreaker.Breaker) (Provider, error) {
	switch cfg.StorageType {
	case "s3":
		p, err := NewS3Provider(ctx, cfg, m, cb)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "local":
		if cfg.StoragePath == "" {
			return nil, fmt.Errorf("STORAGE_PATH required for local storage")
		}
		p, err := NewLocalProvider(cfg.StoragePath, cfg.StorageBucket, m, cb, cfg.StorageFetchTimeout, cfg.StorageMaxRetries, cfg.StorageRetryDelay)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

// backoff returns retryDelay * 2^(attempt-1)
func backoff(retryDelay time.Duration, attempt int) time.Duration {
	return retryDelay * time.Duration(1<<(attempt-1))
}

// cancelOnClose releases the per-fetch context once the body has been consumed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
