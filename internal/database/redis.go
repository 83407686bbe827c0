package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"folderzip/internal/config"
	"folderzip/internal/metrics"
	"folderzip/internal/models"
)

// RedisStore implements Store for Redis. Records are JSON documents:
//
//	<prefix>folder:<id>                -> {"id":..., "name":...}
//	<prefix>folder:<id>:topics         -> [{"id":..., "title":...}, ...]
//	<prefix>topic:<id>:attachments     -> [{"id":..., "file_name":..., "file_path":..., "topic_id":...}, ...]
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// NewRedisStore creates a new Redis store
func NewRedisStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("redis parse url error: %w", err)
	}

	// Configure connection pool
	if cfg.DBMaxConnections > 0 {
		opts.PoolSize = cfg.DBMaxConnections
		opts.MinIdleConns = min(2, cfg.DBMaxConnections)
	}
	opts.ConnMaxLifetime = 1 * time.Hour
	opts.ConnMaxIdleTime = 30 * time.Minute

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect error: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		timeout:   cfg.DatabaseQueryTimeout,
		metrics:   m,
	}, nil
}

func (s *RedisStore) folderKey(id string) string {
	return s.keyPrefix + "folder:" + id
}

func (s *RedisStore) topicsKey(folderID string) string {
	return s.keyPrefix + "folder:" + folderID + ":topics"
}

func (s *RedisStore) attachmentsKey(topicID string) string {
	return s.keyPrefix + "topic:" + topicID + ":attachments"
}

// GetFolder retrieves a folder by ID
func (s *RedisStore) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	defer observeQuery(s.metrics, "redis", "folder", time.Now())

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(queryCtx, s.folderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var folder models.Folder
	if err := json.Unmarshal(data, &folder); err != nil {
		return nil, fmt.Errorf("decode folder %s: %w", id, err)
	}
	if folder.ID == "" {
		folder.ID = id
	}

	return &folder, nil
}

// ListTopics returns the topics stored under the folder's topic list
func (s *RedisStore) ListTopics(ctx context.Context, folderID string) ([]models.Topic, error) {
	defer observeQuery(s.metrics, "redis", "topics", time.Now())

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(queryCtx, s.topicsKey(folderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.Topic{}, nil
	}
	if err != nil {
		return nil, err
	}

	topics := []models.Topic{}
	if err := json.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("decode topics of folder %s: %w", folderID, err)
	}

	return topics, nil
}

// ListAttachments fetches every topic's attachment list in one MGET
func (s *RedisStore) ListAttachments(ctx context.Context, topicIDs []string) ([]models.Attachment, error) {
	if len(topicIDs) == 0 {
		return []models.Attachment{}, nil
	}

	defer observeQuery(s.metrics, "redis", "attachments", time.Now())

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keys := make([]string, len(topicIDs))
	for i, id := range topicIDs {
		keys[i] = s.attachmentsKey(id)
	}

	values, err := s.client.MGet(queryCtx, keys...).Result()
	if err != nil {
		return nil, err
	}

	attachments := []models.Attachment{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// nil: the topic has no attachment list
			continue
		}

		var list []models.Attachment
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("decode attachments of topic %s: %w", topicIDs[i], err)
		}
		for _, a := range list {
			if a.TopicID == "" {
				a.TopicID = topicIDs[i]
			}
			attachments = append(attachments, a)
		}
	}

	return attachments, nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
