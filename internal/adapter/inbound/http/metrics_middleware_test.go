package http

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

// sampleCount returns the observation count of the histogram series
// labelled method in family name.
func sampleCount(t *testing.T, reg *prometheus.Registry, name, method string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabel(m, "method", method) {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	handler := MetricsMiddleware(metrics)(statusHandler(http.StatusOK))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/admin/api/stats", nil))

	if got := sampleCount(t, reg, "socketgate_http_request_duration_seconds", "POST"); got != 1 {
		t.Errorf("observations = %d, want 1", got)
	}
}

func TestMetricsMiddleware_StatusLabels(t *testing.T) {
	tests := []struct {
		code  int
		label string
	}{
		{http.StatusOK, "ok"},
		{http.StatusNoContent, "ok"},
		{http.StatusFound, "ok"},
		{http.StatusForbidden, "error"},
		{http.StatusBadGateway, "error"},
	}
	for _, tt := range tests {
		metrics := NewMetrics(prometheus.NewRegistry())
		handler := MetricsMiddleware(metrics)(statusHandler(tt.code))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/socket", nil))

		if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", tt.label)); got != 1 {
			t.Errorf("code %d: http_requests_total{GET,%s} = %v, want 1", tt.code, tt.label, got)
		}
	}
}

func TestMetricsMiddleware_SkipsProbeEndpoints(t *testing.T) {
	for _, path := range []string{"/metrics", "/health"} {
		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)
		handler := MetricsMiddleware(metrics)(statusHandler(http.StatusOK))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))

		if n := testutil.CollectAndCount(metrics.HTTPRequestsTotal); n != 0 {
			t.Errorf("%s: recorded %d series, want 0", path, n)
		}
	}
}

func TestMetricsMiddleware_HijackedNotRecorded(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	hijacked := make(chan bool, 1)
	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err != nil {
			hijacked <- false
			return
		}
		_ = conn.Close()
		hijacked <- true
	}))

	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET /socket HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	_, _ = bufio.NewReader(conn).ReadByte()

	if !<-hijacked {
		t.Fatal("Hijack through statusRecorder failed")
	}
	if n := testutil.CollectAndCount(metrics.HTTPRequestsTotal); n != 0 {
		t.Errorf("hijacked request recorded %d series, want 0", n)
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	r := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := r.Hijack(); err == nil {
		t.Error("Hijack() on a non-hijacker succeeded")
	}
	if r.hijacked {
		t.Error("hijacked set after failed Hijack")
	}
}
