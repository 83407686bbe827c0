package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"folderzip/internal/circuitbreaker"
	"folderzip/internal/metrics"
)

// LocalProvider implements Provider for local filesystem storage
type LocalProvider struct {
	root           string // basePath joined with the optional bucket directory
	circuitBreaker *circuitbreaker.Breaker
	metrics        *metrics.Metrics
	fetchTimeout   time.Duration
	maxRetries     int
	retryDelay     time.Duration
}

// NewLocalProvider creates a new local filesystem storage provider.
// bucket is an optional sub-directory of basePath holding the attachments.
func NewLocalProvider(basePath, bucket string, m *metrics.Metrics, cb *circuitbreaker.Breaker, fetchTimeout time.Duration, maxRetries int, retryDelay time.Duration) (*LocalProvider, error) {
	absPath, err := filepath.Abs(filepath.Join(basePath, bucket))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("base path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path is not a directory: %s", absPath)
	}

	return &LocalProvider{
		root:           absPath,
		circuitBreaker: cb,
		metrics:        m,
		fetchTimeout:   fetchTimeout,
		maxRetries:     maxRetries,
		retryDelay:     retryDelay,
	}, nil
}

// Type implements Provider
func (l *LocalProvider) Type() string { return "local" }

// resolve maps key to a path under root, rejecting traversal
func (l *LocalProvider) resolve(key string) (string, error) {
	fullPath := filepath.Clean(filepath.Join(l.root, filepath.FromSlash(key)))
	if fullPath != l.root && !strings.HasPrefix(fullPath, l.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path traversal attempt detected: key=%s", key)
	}
	return fullPath, nil
}

// GetObject opens the file stored under key
func (l *LocalProvider) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	resultLabel := "error"
	defer func() {
		l.metrics.StorageFetchDuration.WithLabelValues("local", resultLabel).Observe(time.Since(start).Seconds())
	}()

	l.metrics.ActiveFileFetches.Inc()
	defer l.metrics.ActiveFileFetches.Dec()

	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, err
	}

	result, err := l.circuitBreaker.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 0; attempt <= l.maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff(l.retryDelay, attempt)):
				}
			}

			if err := ctx.Err(); err != nil {
				return nil, err
			}

			file, err := os.Open(fullPath)
			if err == nil {
				info, statErr := file.Stat()
				if statErr == nil && info.IsDir() {
					file.Close()
					return nil, fmt.Errorf("%w: %s is a directory", circuitbreaker.ErrNotCounted, key)
				}
				return file, nil
			}

			lastErr = err
			if !isLocalRetryableError(err) {
				break
			}
		}

		if os.IsNotExist(lastErr) || os.IsPermission(lastErr) {
			return nil, fmt.Errorf("%w: %w", circuitbreaker.ErrNotCounted, lastErr)
		}
		return nil, fmt.Errorf("failed to open file: %w", lastErr)
	})
	if err != nil {
		return nil, err
	}

	resultLabel = "success"
	return result.(io.ReadCloser), nil
}

// isLocalRetryableError determines if a local filesystem error should trigger a retry
func isLocalRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if os.IsNotExist(err) || os.IsPermission(err) {
		return false
	}

	// Other I/O errors (network filesystems) may be transient
	return true
}

// HealthCheck verifies the root directory is still accessible
func (l *LocalProvider) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(l.root); err != nil {
		return fmt.Errorf("base path unavailable: %w", err)
	}
	return nil
}
