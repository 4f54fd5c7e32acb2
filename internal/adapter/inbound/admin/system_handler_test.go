package admin

import (
	"encoding/json"
	"net/http"
	"runtime"
	"testing"
	"time"
)

func decodeSystem(t *testing.T, h *AdminAPIHandler) SystemInfoResponse {
	t.Helper()
	rec := serve(h, http.MethodGet, "/admin/api/system", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp SystemInfoResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestSystemInfo_Runtime(t *testing.T) {
	store := newFakeStore()
	boot(t, store, "a")
	h := NewAdminAPIHandler(
		WithStartTime(time.Now().UTC().Add(-5*time.Second)),
		WithConnections(store),
	)

	resp := decodeSystem(t, h)
	if resp.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", resp.GoVersion, runtime.Version())
	}
	if resp.OS != runtime.GOOS || resp.Arch != runtime.GOARCH {
		t.Errorf("platform = %s/%s, want %s/%s", resp.OS, resp.Arch, runtime.GOOS, runtime.GOARCH)
	}
	if resp.UptimeSec < 4 {
		t.Errorf("UptimeSec = %d, want >= 4", resp.UptimeSec)
	}
	if resp.Connections != 1 {
		t.Errorf("Connections = %d, want 1", resp.Connections)
	}
}

func TestSystemInfo_BuildInfo(t *testing.T) {
	tests := []struct {
		name string
		info *BuildInfo
		want BuildInfo
	}{
		{"defaults", nil, BuildInfo{Version: "dev", Commit: "none", BuildDate: "unknown"}},
		{"injected", &BuildInfo{Version: "0.4.0", Commit: "9f1c2e", BuildDate: "2026-03-02"},
			BuildInfo{Version: "0.4.0", Commit: "9f1c2e", BuildDate: "2026-03-02"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []AdminAPIOption
			if tt.info != nil {
				opts = append(opts, WithBuildInfo(tt.info))
			}
			resp := decodeSystem(t, NewAdminAPIHandler(opts...))
			got := BuildInfo{Version: resp.Version, Commit: resp.Commit, BuildDate: resp.BuildDate}
			if got != tt.want {
				t.Errorf("build info = %+v, want %+v", got, tt.want)
			}
		})
	}
}
