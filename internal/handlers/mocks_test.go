package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"folderzip/internal/database"
	"folderzip/internal/metrics"
	"folderzip/internal/models"
)

// Shared metrics instance to avoid duplicate Prometheus registration
var sharedMetrics = metrics.New()

// mockStore implements database.Store
type mockStore struct {
	folders     map[string]models.Folder
	topics      map[string][]models.Topic
	attachments map[string][]models.Attachment // by topic id
	err         error
}

func (m *mockStore) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	if m.err != nil {
		return nil, m.err
	}
	f, ok := m.folders[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &f, nil
}

func (m *mockStore) ListTopics(ctx context.Context, folderID string) ([]models.Topic, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.topics[folderID], nil
}

func (m *mockStore) ListAttachments(ctx context.Context, topicIDs []string) ([]models.Attachment, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Attachment
	for _, id := range topicIDs {
		out = append(out, m.attachments[id]...)
	}
	return out, nil
}

func (m *mockStore) Ping(ctx context.Context) error { return m.err }

func (m *mockStore) Close() error { return nil }

// mockStorage implements storage.Provider
type mockStorage struct {
	files     map[string]string
	healthErr error
}

func (m *mockStorage) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if content, ok := m.files[key]; ok {
		return io.NopCloser(strings.NewReader(content)), nil
	}
	return nil, fmt.Errorf("get %s: %w", key, errors.New("not found"))
}

func (m *mockStorage) HealthCheck(ctx context.Context) error { return m.healthErr }

func (m *mockStorage) Type() string { return "mock" }
