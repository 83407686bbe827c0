package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics"))
	})
}

func TestBasicAuth(t *testing.T) {
	tests := []struct {
		name       string
		user, pass string // configured
		send       bool
		sendUser   string
		sendPass   string
		wantStatus int
	}{
		{"valid credentials", "admin", "secret", true, "admin", "secret", http.StatusOK},
		{"wrong user", "admin", "secret", true, "root", "secret", http.StatusUnauthorized},
		{"wrong password", "admin", "secret", true, "admin", "secret2", http.StatusUnauthorized},
		{"prefix of password", "admin", "secret", true, "admin", "sec", http.StatusUnauthorized},
		{"no credentials", "admin", "secret", false, "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.send {
				req.SetBasicAuth(tt.sendUser, tt.sendPass)
			}
			w := httptest.NewRecorder()

			BasicAuth(tt.user, tt.pass)(okHandler()).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := w.Header().Get("WWW-Authenticate"); got != `Basic realm="metrics"` {
					t.Errorf("WWW-Authenticate = %q", got)
				}
			} else if w.Body.String() != "metrics" {
				t.Errorf("body = %q, want metrics", w.Body.String())
			}
		})
	}
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	teapot := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := RequestIDMiddleware(AccessLog(logger)(teapot))

	req := httptest.NewRequest(http.MethodGet, "/folders/f1/export", nil)
	req.Header.Set("X-Request-ID", "req-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status field = %v, want %d", fields["status"], http.StatusTeapot)
	}
	if fields["path"] != "/folders/f1/export" {
		t.Errorf("path field = %v", fields["path"])
	}
	if fields["request_id"] != "req-123" {
		t.Errorf("request_id field = %v, want req-123", fields["request_id"])
	}
}
