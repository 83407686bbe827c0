package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"folderzip/internal/config"
	"folderzip/internal/metrics"
	"folderzip/internal/models"
)

// PostgresStore implements Store for PostgreSQL
type PostgresStore struct {
	pool             *pgxpool.Pool
	foldersTable     string
	topicsTable      string
	attachmentsTable string
	timeout          time.Duration
	metrics          *metrics.Metrics
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config error: %w", err)
	}
	if cfg.DBMaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect error: %w", err)
	}

	return &PostgresStore{
		pool:             pool,
		foldersTable:     cfg.FoldersTable,
		topicsTable:      cfg.TopicsTable,
		attachmentsTable: cfg.AttachmentsTable,
		timeout:          cfg.DatabaseQueryTimeout,
		metrics:          m,
	}, nil
}

// GetFolder retrieves a folder by ID
func (s *PostgresStore) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	defer observeQuery(s.metrics, "postgres", "folder", time.Now())

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var folder models.Folder
	query := fmt.Sprintf("SELECT id, name FROM %s WHERE id = $1", s.foldersTable)
	err := s.pool.QueryRow(queryCtx, query, id).Scan(&folder.ID, &folder.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &folder, nil
}

// ListTopics returns the topics whose parent folder is folderID
func (s *PostgresStore) ListTopics(ctx context.Context, folderID string) ([]models.Topic, error) {
	defer observeQuery(s.metrics, "postgres", "topics", time.Now())

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf("SELECT id, title FROM %s WHERE folder_id = $1 ORDER BY id", s.topicsTable)
	rows, err := s.pool.Query(queryCtx, query, folderID)
	if err != nil {
		return nil, err
	}

	topics, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Topic, error) {
		var t models.Topic
		err := row.Scan(&t.ID, &t.Title)
		return t, err
	})
	if err != nil {
		return nil, err
	}

	return topics, nil
}

// ListAttachments returns every attachment whose topic_id is in topicIDs
func (s *PostgresStore) ListAttachments(ctx context.Context, topicIDs []string) ([]models.Attachment, error) {
	if len(topicIDs) == 0 {
		return []models.Attachment{}, nil
	}

	defer observeQuery(s.metrics, "postgres", "attachments", time.Now())

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT id, file_name, file_path, topic_id FROM %s WHERE topic_id = ANY($1) ORDER BY id",
		s.attachmentsTable,
	)
	rows, err := s.pool.Query(queryCtx, query, topicIDs)
	if err != nil {
		return nil, err
	}

	attachments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Attachment, error) {
		var a models.Attachment
		err := row.Scan(&a.ID, &a.FileName, &a.FilePath, &a.TopicID)
		return a, err
	})
	if err != nil {
		return nil, err
	}

	return attachments, nil
}

// Ping checks connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
