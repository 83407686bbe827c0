package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"folderzip/internal/config"
	"folderzip/internal/metrics"
	"folderzip/internal/models"
)

// ErrNotFound is returned when a single-record lookup matches nothing
var ErrNotFound = errors.New("record not found")

// Store defines the read-only record store operations an export needs.
// List operations return an empty slice, not an error, when nothing matches.
type Store interface {
	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	ListTopics(ctx context.Context, folderID string) ([]models.Topic, error)
	ListAttachments(ctx context.Context, topicIDs []string) ([]models.Attachment, error)
	Ping(ctx context.Context) error
	Close() error
}

// These indirection variables allow tests to override the concrete
// store constructors so we can exercise New(...) without real DBs.
var (
	newPostgresStoreFunc = func(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Store, error) {
		return NewPostgresStore(ctx, cfg, m)
	}
	newMySQLStoreFunc = func(cfg *config.Config, m *metrics.Metrics) (Store, error) {
		return NewMySQLStore(cfg, m)
	}
	newRedisStoreFunc = func(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Store, error) {
		return NewRedisStore(ctx, cfg, m)
	}
)

// New creates a new record store based on the configured engine
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Store, error) {
	switch cfg.DBEngine {
	case "postgres", "postgresql":
		return newPostgresStoreFunc(ctx, cfg, m)
	case "mysql":
		return newMySQLStoreFunc(cfg, m)
	case "redis", "rediss":
		return newRedisStoreFunc(ctx, cfg, m)
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", cfg.DBEngine)
	}
}

func observeQuery(m *metrics.Metrics, dbType, query string, start time.Time) {
	m.DatabaseQueryDuration.WithLabelValues(dbType, query).Observe(time.Since(start).Seconds())
}
