package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	var gotID string
	var gotLogger *slog.Logger
	handler := RequestIDMiddleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
		gotLogger = LoggerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/socket", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotID != "abc-123" {
		t.Errorf("request id = %q, want abc-123", gotID)
	}
	if rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("response X-Request-ID = %q", rec.Header().Get("X-Request-ID"))
	}
	if gotLogger == nil || gotLogger == slog.Default() {
		t.Error("enriched logger not stored in context")
	}
}

func TestRequestIDMiddleware_Generates(t *testing.T) {
	var gotID string
	handler := RequestIDMiddleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(gotID) != 36 {
		t.Errorf("generated id = %q, want a UUID", gotID)
	}
	if rec.Header().Get("X-Request-ID") != gotID {
		t.Error("response header does not echo generated id")
	}
}

func TestLoggerFromContext_Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if LoggerFromContext(req.Context()) != slog.Default() {
		t.Error("LoggerFromContext without middleware should return slog.Default()")
	}
}

func TestOriginAllowlist(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    int
	}{
		{"no origin header", nil, "", http.StatusOK},
		{"same host", nil, "http://example.com", http.StatusOK},
		{"same host different case", nil, "http://EXAMPLE.com", http.StatusOK},
		{"foreign origin blocked", nil, "https://evil.test", http.StatusForbidden},
		{"allowlisted origin", []string{"https://app.test/"}, "https://app.test", http.StatusOK},
		{"not on allowlist", []string{"https://app.test"}, "https://other.test", http.StatusForbidden},
		{"wildcard", []string{"*"}, "https://anything.test", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := OriginAllowlist(tt.allowed)(statusHandler(http.StatusOK))
			req := httptest.NewRequest(http.MethodGet, "/socket", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
