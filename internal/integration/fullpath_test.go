package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/socketgate/socketgate/internal/adapter/inbound/admin"
	"github.com/socketgate/socketgate/internal/domain/connection"
	"github.com/socketgate/socketgate/internal/domain/ratelimit"
)

func bodyMap(t *testing.T, body any) map[string]any {
	t.Helper()
	m, ok := body.(map[string]any)
	if !ok {
		t.Fatalf("body = %#v, want JSON object", body)
	}
	return m
}

// TestFullPath_CookieSession logs in over the socket and checks the session
// cookie is replayed on the next request.
func TestFullPath_CookieSession(t *testing.T) {
	s := newStack(t, connection.Config{Cookies: true})
	c := s.dial(t, nil)

	res := c.request("POST", "/login", nil, map[string]string{"user": "ada"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("login status = %d, want 201", res.StatusCode)
	}

	res = c.request("GET", "/me", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200 (body %v)", res.StatusCode, res.Body)
	}
	body := bodyMap(t, res.Body)
	if body["user"] != "ada" {
		t.Errorf("user = %v, want ada", body["user"])
	}

	conns := s.registry.List()
	if len(conns) != 1 {
		t.Fatalf("registry size = %d, want 1", len(conns))
	}
	if body["connection"] != conns[0].ID() {
		t.Errorf("connection header = %v, want %s", body["connection"], conns[0].ID())
	}
}

func TestFullPath_CookiesIsolatedPerConnection(t *testing.T) {
	s := newStack(t, connection.Config{Cookies: true})
	a := s.dial(t, nil)
	b := s.dial(t, nil)

	if res := a.request("POST", "/login", nil, map[string]string{"user": "ada"}); res.StatusCode != http.StatusCreated {
		t.Fatalf("login status = %d, want 201", res.StatusCode)
	}
	if res := b.request("GET", "/me", nil, nil); res.StatusCode != http.StatusUnauthorized {
		t.Errorf("second connection status = %d, want 401", res.StatusCode)
	}
}

func TestFullPath_CookiesDisabled(t *testing.T) {
	s := newStack(t, connection.Config{})
	c := s.dial(t, nil)

	c.request("POST", "/login", nil, map[string]string{"user": "ada"})
	if res := c.request("GET", "/me", nil, nil); res.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a cookie jar", res.StatusCode)
	}
}

func TestFullPath_StickyAndStrip(t *testing.T) {
	s := newStack(t, connection.Config{
		Cookies: true,
		Sticky:  []string{"X-Tenant"},
		Strip:   []string{"X-Powered-By"},
	})
	c := s.dial(t, http.Header{"X-Tenant": {"acme"}})

	c.request("POST", "/login", nil, map[string]string{"user": "ada"})
	res := c.request("GET", "/me", map[string]string{"x-tenant": "globex"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if got := bodyMap(t, res.Body)["tenant"]; got != "acme" {
		t.Errorf("tenant = %v, want handshake value acme", got)
	}
	if _, ok := res.Headers.Get("x-powered-by"); ok {
		t.Error("x-powered-by reached the client")
	}
}

func TestFullPath_RequestBudget(t *testing.T) {
	s := newStack(t, connection.Config{
		Budget: ratelimit.Config{Rate: 2, Burst: 2, Period: time.Minute},
	})
	c := s.dial(t, nil)

	for i := 0; i < 2; i++ {
		if res := c.request("GET", "/me", nil, nil); res.StatusCode == http.StatusTooManyRequests {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	res := c.request("GET", "/me", nil, nil)
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", res.StatusCode)
	}
	if v, ok := res.Headers.Get("retry-after"); !ok || v == "0" {
		t.Errorf("retry-after = %q, want a positive delay", v)
	}
	if got := s.stats.GetStats().RejectedRequests; got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}
}

func TestFullPath_InvalidRequest(t *testing.T) {
	s := newStack(t, connection.Config{})
	c := s.dial(t, nil)

	res := c.request("GET", "", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
}

func TestFullPath_UpstreamDown(t *testing.T) {
	s := newStack(t, connection.Config{})
	c := s.dial(t, nil)
	s.app.Close()

	res := c.request("GET", "/me", nil, nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", res.StatusCode)
	}
}

func TestFullPath_DisconnectDropsInflight(t *testing.T) {
	s := newStack(t, connection.Config{})
	c := s.dial(t, nil)

	if err := c.conn.WriteJSON(map[string]any{
		"event": "get", "id": 1,
		"data": map[string]any{"method": "get", "url": "/slow"},
	}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	waitFor(t, "request to reach the connection", func() bool { return s.registry.Size() == 1 })
	time.Sleep(50 * time.Millisecond)
	_ = c.conn.Close()

	waitFor(t, "connection to unregister", func() bool { return s.registry.Size() == 0 })
	waitFor(t, "dropped response", func() bool { return s.stats.GetStats().DroppedResponses == 1 })
}

func TestFullPath_AdminEmitAndKick(t *testing.T) {
	s := newStack(t, connection.Config{})
	c := s.dial(t, nil)
	waitFor(t, "registration", func() bool { return s.registry.Size() == 1 })

	resp, err := s.srv.Client().Get(adminURL(s, "/admin/api/connections"))
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	var list []admin.ConnectionResponse
	err = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v (err %v), want one connection", list, err)
	}
	id := list[0].ID
	if list[0].Protocol != "sails" {
		t.Errorf("protocol = %q, want sails", list[0].Protocol)
	}

	emit := []byte(`{"event":"notice","data":{"text":"hi"}}`)
	resp, err = s.srv.Client().Post(adminURL(s, "/admin/api/connections/%s/emit", id), "application/json", bytes.NewReader(emit))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("emit status = %d, want 204", resp.StatusCode)
	}

	push := c.push()
	if push.Event != "notice" || string(push.Data) != `{"text":"hi"}` {
		t.Errorf("push = %s %s, want notice {\"text\":\"hi\"}", push.Event, push.Data)
	}

	req, _ := http.NewRequest(http.MethodDelete, adminURL(s, "/admin/api/connections/%s", id), nil)
	resp, err = s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("kick: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("kick status = %d, want 204", resp.StatusCode)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := c.conn.ReadMessage(); err == nil {
		t.Error("socket still readable after kick")
	}
	waitFor(t, "kicked connection to unregister", func() bool { return s.registry.Size() == 0 })
}
