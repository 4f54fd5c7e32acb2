package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEtagMatches(t *testing.T) {
	t.Parallel()

	const etag = `"00000000deadbeef"`
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{etag, true},
		{`W/` + etag, true},
		{`"other", ` + etag, true},
		{"*", true},
		{`"other"`, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, etag); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestListConnections_ETag(t *testing.T) {
	store := newFakeStore()
	boot(t, store, "conn-a")
	h := NewAdminAPIHandler(WithConnections(store))

	first := serve(h, http.MethodGet, "/admin/api/connections", "")
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("list response has no ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/api/connections", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("304 carried a body: %q", rec.Body.String())
	}

	boot(t, store, "conn-b")
	second := serve(h, http.MethodGet, "/admin/api/connections", "")
	if second.Header().Get("ETag") == etag {
		t.Error("ETag unchanged after a new connection registered")
	}
}
