package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"folderzip/internal/auth"
	"folderzip/internal/config"
	"folderzip/internal/database"
	"folderzip/internal/exporter"
	"folderzip/internal/handlers"
	"folderzip/internal/metrics"
	"folderzip/internal/models"
)

var sharedMetrics = metrics.New()

type stubStore struct{}

func (stubStore) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	if id != "f1" {
		return nil, database.ErrNotFound
	}
	return &models.Folder{ID: "f1", Name: "Acme"}, nil
}

func (stubStore) ListTopics(ctx context.Context, folderID string) ([]models.Topic, error) {
	if folderID != "f1" {
		return []models.Topic{}, nil
	}
	return []models.Topic{{ID: "t1", Title: "Docs"}}, nil
}

func (stubStore) ListAttachments(ctx context.Context, topicIDs []string) ([]models.Attachment, error) {
	return []models.Attachment{{ID: "a1", FileName: "a.txt", FilePath: "k/a.txt", TopicID: "t1"}}, nil
}

func (stubStore) Ping(ctx context.Context) error { return nil }
func (stubStore) Close() error                   { return nil }

type stubBlobs struct{}

func (stubBlobs) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if key != "k/a.txt" {
		return nil, fmt.Errorf("no object %s", key)
	}
	return io.NopCloser(strings.NewReader("a")), nil
}

func (stubBlobs) HealthCheck(ctx context.Context) error { return nil }
func (stubBlobs) Type() string                          { return "stub" }

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	logger := zap.NewNop()
	exp := exporter.New(logger, stubStore{}, stubBlobs{}, sharedMetrics, 2, 0)
	verifier := auth.NewVerifier(nil, false, sharedMetrics)

	exportHandler := handlers.NewExportHandler(logger, stubStore{}, exp, verifier, sharedMetrics, nil, false, 0)
	healthHandler := handlers.NewHealthHandler(logger, stubStore{}, stubBlobs{}, sharedMetrics)

	return New(logger, cfg, exportHandler, healthHandler)
}

func serve(s *Server, method, path string, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, &config.Config{Port: "0", RequestTimeout: time.Minute})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantType   string
		routed     bool // middleware only runs for matched routes
	}{
		{"export", http.MethodGet, "/folders/f1/export", http.StatusOK, "application/zip", true},
		{"export unknown folder", http.MethodGet, "/folders/nope/export", http.StatusNotFound, "", true},
		{"export wrong method", http.MethodPost, "/folders/f1/export", http.StatusMethodNotAllowed, "", false},
		{"health", http.MethodGet, "/health", http.StatusOK, "application/json", true},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "", true},
		{"unknown route", http.MethodGet, "/f1", http.StatusNotFound, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, tt.method, tt.path, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantType != "" && w.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", w.Header().Get("Content-Type"), tt.wantType)
			}
			if tt.routed && w.Header().Get("X-Request-ID") == "" {
				t.Error("X-Request-ID not set")
			}
		})
	}
}

func TestMetricsWithAuth(t *testing.T) {
	s := newTestServer(t, &config.Config{
		Port:            "0",
		MetricsUsername: "testuser",
		MetricsPassword: "testpass",
	})

	if w := serve(s, http.MethodGet, "/metrics", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("without auth status = %d, want 401", w.Code)
	}

	w := serve(s, http.MethodGet, "/metrics", func(r *http.Request) { r.SetBasicAuth("testuser", "testpass") })
	if w.Code != http.StatusOK {
		t.Fatalf("with auth status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "folderzip_") {
		t.Error("metrics body does not contain folderzip metrics")
	}
}

func TestWithDeadline(t *testing.T) {
	var hasDeadline bool
	h := withDeadline(time.Second, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !hasDeadline {
		t.Error("request context has no deadline")
	}

	inner := http.NewServeMux()
	if got := withDeadline(0, inner); got != http.Handler(inner) {
		t.Error("zero timeout should return the handler unchanged")
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := newTestServer(t, &config.Config{Port: "0"})

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestServer_WaitForShutdown(t *testing.T) {
	s := newTestServer(t, &config.Config{Port: "0", RequestTimeout: time.Second})

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.WaitForShutdown() }()

	// let signal.Notify register
	time.Sleep(50 * time.Millisecond)

	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess: %v", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitForShutdown() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
}
