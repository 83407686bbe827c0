package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generates a uuid", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		header := w.Header().Get("X-Request-ID")
		if _, err := uuid.Parse(header); err != nil {
			t.Fatalf("X-Request-ID %q is not a uuid: %v", header, err)
		}
		if seen != header {
			t.Errorf("context id = %q, header = %q", seen, header)
		}
	})

	t.Run("reuses caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "upstream-42")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("X-Request-ID"); got != "upstream-42" {
			t.Errorf("X-Request-ID = %q, want upstream-42", got)
		}
		if seen != "upstream-42" {
			t.Errorf("context id = %q, want upstream-42", seen)
		}
	})

	t.Run("ids are unique", func(t *testing.T) {
		w1, w2 := httptest.NewRecorder(), httptest.NewRecorder()
		h.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/", nil))
		h.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/", nil))
		if w1.Header().Get("X-Request-ID") == w2.Header().Get("X-Request-ID") {
			t.Error("two requests got the same id")
		}
	})
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}

func TestLoggerWithRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ctx := context.WithValue(context.Background(), requestIDKey, "abc")
	LoggerWithRequestID(logger, ctx).Info("tagged")
	LoggerWithRequestID(logger, context.Background()).Info("untagged")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ContextMap()["request_id"] != "abc" {
		t.Errorf("tagged entry fields = %v", entries[0].ContextMap())
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		t.Errorf("untagged entry has request_id: %v", entries[1].ContextMap())
	}
}
