package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHashToken(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("s3cr3t")
	if err != nil {
		t.Fatalf("HashToken() error: %v", err)
	}
	if !IsTokenHash(hash) {
		t.Errorf("HashToken() = %q, want argon2id PHC string", hash)
	}
	if _, err := HashToken(""); err == nil {
		t.Error("HashToken(\"\") error = nil, want error")
	}
}

func TestAdminAuthMiddleware_TokenHash(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("s3cr3t")
	if err != nil {
		t.Fatalf("HashToken() error: %v", err)
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := NewAdminAPIHandler(WithTokenHash(hash))

	tests := []struct {
		auth string
		want int
	}{
		{"Bearer s3cr3t", http.StatusOK},
		{"Bearer wrong", http.StatusUnauthorized},
		{"", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/admin/api/system", nil)
		req.RemoteAddr = "10.0.0.1:1"
		if tt.auth != "" {
			req.Header.Set("Authorization", tt.auth)
		}
		rec := httptest.NewRecorder()
		h.adminAuthMiddleware(inner).ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("auth %q: status = %d, want %d", tt.auth, rec.Code, tt.want)
		}
	}
}

func TestCheckToken_MalformedHash(t *testing.T) {
	t.Parallel()

	h := NewAdminAPIHandler(WithTokenHash("$argon2id$garbage"))
	if h.checkToken("anything") {
		t.Error("checkToken() = true against a malformed hash")
	}
}
