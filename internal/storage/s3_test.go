package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/smithy-go"

	"folderzip/internal/circuitbreaker"
	appconfig "folderzip/internal/config"
)

func baseS3TestConfig(endpoint string) *appconfig.Config {
	return &appconfig.Config{
		StorageBucket:             "attachments",
		S3Endpoint:                endpoint,
		S3Region:                  "us-east-1",
		S3AccessKeyID:             "test-access-key",
		S3SecretAccessKey:         "test-secret-key",
		S3UsePathStyle:            true,
		StorageFetchTimeout:       2 * time.Second,
		StorageMaxRetries:         1,
		StorageRetryDelay:         10 * time.Millisecond,
		CircuitBreakerThreshold:   3,
		CircuitBreakerTimeout:     time.Second,
		CircuitBreakerMaxRequests: 1,
	}
}

// fakeS3 serves a single object and answers NoSuchKey for everything else
func fakeS3(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/attachments":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/attachments/u1/doc.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Length", "8")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, "%PDF-1.7")
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewS3Provider_UsePathStyle(t *testing.T) {
	for _, pathStyle := range []bool{true, false} {
		cfg := baseS3TestConfig("http://example.com")
		cfg.S3UsePathStyle = pathStyle

		provider, err := NewS3Provider(context.Background(), cfg, sharedMetrics, testBreaker("test-s3-style"))
		if err != nil {
			t.Fatalf("NewS3Provider() error = %v", err)
		}
		if got := provider.client.Options().UsePathStyle; got != pathStyle {
			t.Errorf("UsePathStyle = %v, want %v", got, pathStyle)
		}
	}
}

func TestNewS3Provider_RequiresBucket(t *testing.T) {
	cfg := baseS3TestConfig("http://example.com")
	cfg.StorageBucket = ""

	if _, err := NewS3Provider(context.Background(), cfg, sharedMetrics, testBreaker("test-s3-bucket")); err == nil {
		t.Fatal("NewS3Provider() without bucket returned nil error")
	}
}

func TestS3Provider_GetObject(t *testing.T) {
	srv := fakeS3(t)
	cfg := baseS3TestConfig(srv.URL)

	provider, err := NewS3Provider(context.Background(), cfg, sharedMetrics, testBreaker("test-s3-get"))
	if err != nil {
		t.Fatalf("NewS3Provider() error = %v", err)
	}

	body, err := provider.GetObject(context.Background(), "u1/doc.pdf")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "%PDF-1.7" {
		t.Errorf("content = %q, want %%PDF-1.7", data)
	}

	_, err = provider.GetObject(context.Background(), "u1/missing.pdf")
	if err == nil {
		t.Fatal("GetObject() for missing key returned nil error")
	}
	if !errors.Is(err, circuitbreaker.ErrNotCounted) {
		t.Errorf("missing key error = %v, want ErrNotCounted", err)
	}

	if err := provider.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("connection reset"), false},
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, true},
		{"other client fault", &smithy.GenericAPIError{Code: "BadDigest", Fault: smithy.FaultClient}, true},
		{"server fault", &smithy.GenericAPIError{Code: "InternalError", Fault: smithy.FaultServer}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isClientError(tt.err); got != tt.want {
				t.Errorf("isClientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, false},
		{"canceled", context.Canceled, false},
		{"missing key", &smithy.GenericAPIError{Code: "NoSuchKey"}, false},
		{"server fault", &smithy.GenericAPIError{Code: "SlowDown", Fault: smithy.FaultServer}, true},
		{"network", errors.New("connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
